package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"storefront/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

//go:embed scripts/create_order.lua
var createOrderScript string

//go:embed scripts/update_status.lua
var updateStatusScript string

const keyPrefix = "storefront:"

// Client is a Redis-backed order document store
type Client struct {
	rdb          *redis.Client
	createScript *redis.Script
	updateScript *redis.Script
	logger       *zap.Logger
	newID        func() string
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientWith(rdb), nil
}

// NewClientWith wraps an existing connection. The caller keeps ownership of rdb.
func NewClientWith(rdb *redis.Client) *Client {
	return &Client{
		rdb:          rdb,
		createScript: redis.NewScript(createOrderScript),
		updateScript: redis.NewScript(updateStatusScript),
		logger:       util.ComponentLogger("redis"),
		newID:        newDocumentID,
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// MarkProcessed records an event id with a TTL. It reports false if the id
// was already recorded.
func (c *Client) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, keyPrefix+"processed:"+eventID, "1", ttl).Result()
}

func documentKey(namespace, id string) string {
	return keyPrefix + namespace + "/" + id
}

func indexKey(namespace string) string {
	return keyPrefix + namespace
}

func channelName(namespace, id string) string {
	return keyPrefix + "changes:" + namespace + "/" + id
}

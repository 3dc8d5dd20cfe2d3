package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/docstore"
	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errChannelClosed = errors.New("redis subscription channel closed")

// record is the hash layout of one order document and the payload of its
// change notifications. Status holds the wire name; the hash also keeps a
// "rank" field the scripts compare to refuse backwards moves.
type record struct {
	Data      string `json:"data"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// body holds the immutable part of an order
type body struct {
	UserID      string             `json:"userId"`
	Items       []models.OrderItem `json:"items"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
}

func newDocumentID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Create stores a new order document. The server clock assigns createdAt.
func (c *Client) Create(ctx context.Context, namespace string, order *models.Order) (string, error) {
	data, err := json.Marshal(body{
		UserID:      order.UserID,
		Items:       order.Items,
		TotalAmount: order.TotalAmount,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal order: %w", err)
	}

	id := c.newID()
	keys := []string{documentKey(namespace, id), indexKey(namespace), channelName(namespace, id)}
	if err := c.createScript.Run(ctx, c.rdb, keys, id, string(data), order.Status.String(), statusRank(order.Status)).Err(); err != nil {
		return "", fmt.Errorf("create order script failed: %w", err)
	}

	return id, nil
}

// Get returns one order document
func (c *Client) Get(ctx context.Context, namespace, id string) (*models.Order, error) {
	fields, err := c.rdb.HGetAll(ctx, documentKey(namespace, id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}

	return decodeRecord(id, record{
		Data:      fields["data"],
		Status:    fields["status"],
		CreatedAt: fields["createdAt"],
	})
}

// List returns the documents of a namespace, newest first
func (c *Client) List(ctx context.Context, namespace string) ([]models.Order, error) {
	ids, err := c.rdb.ZRevRange(ctx, indexKey(namespace), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, documentKey(namespace, id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	orders := make([]models.Order, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		order, err := decodeRecord(ids[i], record{
			Data:      fields["data"],
			Status:    fields["status"],
			CreatedAt: fields["createdAt"],
		})
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// Update writes the status field. Moving status backwards is rejected.
func (c *Client) Update(ctx context.Context, namespace, id string, fields docstore.Fields) error {
	for name := range fields {
		if name != docstore.StatusField {
			return fmt.Errorf("field %q is read-only", name)
		}
	}
	status, err := docstore.StatusOf(fields)
	if err != nil {
		return err
	}

	keys := []string{documentKey(namespace, id), channelName(namespace, id)}
	err = c.updateScript.Run(ctx, c.rdb, keys, status.String(), statusRank(status)).Err()
	switch {
	case err == nil:
		return nil
	case strings.HasPrefix(err.Error(), "NOTFOUND"):
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	case strings.HasPrefix(err.Error(), "REGRESSION"):
		return fmt.Errorf("%w: %s would move order %s backwards", models.ErrInvalidStatus, status, id)
	default:
		return fmt.Errorf("update status script failed: %w", err)
	}
}

// Subscribe listens on the document's change channel. The current state is
// read once the channel subscription is confirmed, so no write between the
// two is missed.
func (c *Client) Subscribe(namespace, id string, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) docstore.Unsubscribe {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := c.rdb.Subscribe(ctx, channelName(namespace, id))
	done := make(chan struct{})
	logger := c.logger.With(zap.String("order_id", id))

	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		if onError != nil {
			onError(err)
		}
	}

	go func() {
		defer close(done)
		defer pubsub.Close()

		if _, err := pubsub.Receive(ctx); err != nil {
			fail(fmt.Errorf("failed to subscribe to channel: %w", err))
			return
		}

		order, err := c.Get(ctx, namespace, id)
		switch {
		case errors.Is(err, models.ErrNotFound):
			onSnapshot(nil, false)
		case err != nil:
			fail(err)
			return
		default:
			onSnapshot(order, true)
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					fail(errChannelClosed)
					return
				}
				if ctx.Err() != nil {
					return
				}

				var rec record
				if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
					logger.Error("Failed to unmarshal change notification", zap.Error(err))
					continue
				}
				order, err := decodeRecord(id, rec)
				if err != nil {
					logger.Error("Failed to decode change notification", zap.Error(err))
					continue
				}
				onSnapshot(order, true)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func decodeRecord(id string, rec record) (*models.Order, error) {
	var b body
	if err := json.Unmarshal([]byte(rec.Data), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order %s: %w", id, err)
	}

	status, err := models.ParseOrderStatus(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}

	createdAt, err := parseServerTime(rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}

	return &models.Order{
		ID:          id,
		UserID:      b.UserID,
		Items:       b.Items,
		TotalAmount: b.TotalAmount,
		Status:      status,
		CreatedAt:   createdAt,
	}, nil
}

func statusRank(status models.OrderStatus) string {
	return strconv.Itoa(int(status))
}

// parseServerTime parses the "seconds.micros" stamp written from Redis TIME
func parseServerTime(s string) (time.Time, error) {
	secPart, usecPart, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid createdAt %q", s)
	}

	var usec int64
	if usecPart != "" {
		usec, err = strconv.ParseInt(usecPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid createdAt %q", s)
		}
	}

	return time.Unix(sec, usec*int64(time.Microsecond)).UTC(), nil
}

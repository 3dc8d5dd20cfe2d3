package store

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// Store is a Postgres-backed order document store and product source
type Store struct {
	db          *sqlx.DB
	databaseURL string
	logger      *zap.Logger
	newID       func() string

	mu       sync.Mutex
	subs     map[string]map[*subscription]struct{}
	listener *pq.Listener
	closed   bool
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := newStore(db)
	s.databaseURL = databaseURL
	return s, nil
}

func newStore(db *sqlx.DB) *Store {
	return &Store{
		db:     db,
		logger: util.ComponentLogger("postgres"),
		newID:  newDocumentID,
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close ends open subscriptions, stops the notification listener and closes
// the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.closeSubscriptionsLocked()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil {
			s.logger.Warn("Failed to close notification listener", zap.Error(err))
		}
	}
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT id, name, price, description, image FROM products ORDER BY id")
	return products, err
}

// UpsertProducts inserts products, replacing rows with the same id
func (s *Store) UpsertProducts(ctx context.Context, products []models.Product) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range products {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO products (id, name, price, description, image)
			VALUES (:id, :name, :price, :description, :image)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				price = EXCLUDED.price,
				description = EXCLUDED.description,
				image = EXCLUDED.image`, p)
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

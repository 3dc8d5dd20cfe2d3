package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/docstore"
	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// changesChannel carries "namespace/id" for every committed document write
const changesChannel = "order_document_changes"

type orderRow struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	Items       []byte          `db:"items"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
}

func newDocumentID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func documentPath(namespace, id string) string {
	return namespace + "/" + id
}

// Create inserts a new order document. The database clock assigns createdAt.
func (s *Store) Create(ctx context.Context, namespace string, order *models.Order) (string, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order items: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := s.newID()
	var createdAt time.Time
	err = tx.GetContext(ctx, &createdAt, `
		INSERT INTO order_documents (namespace, id, user_id, items, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		namespace, id, order.UserID, string(items), order.TotalAmount, order.Status.String())
	if err != nil {
		return "", fmt.Errorf("failed to insert order: %w", err)
	}

	if err := notify(ctx, tx, namespace, id); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Get retrieves one order document
func (s *Store) Get(ctx context.Context, namespace, id string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, items, total_amount, status, created_at
		FROM order_documents WHERE namespace = $1 AND id = $2`, namespace, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row.toOrder()
}

// List retrieves the documents of a namespace, newest first
func (s *Store) List(ctx context.Context, namespace string) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, items, total_amount, status, created_at
		FROM order_documents WHERE namespace = $1
		ORDER BY created_at DESC, id DESC`, namespace)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(rows))
	for _, row := range rows {
		order, err := row.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// Update writes the status field under a row lock. Statuses are stored by
// name; moving one backwards is rejected.
func (s *Store) Update(ctx context.Context, namespace, id string, fields docstore.Fields) error {
	for name := range fields {
		if name != docstore.StatusField {
			return fmt.Errorf("field %q is read-only", name)
		}
	}
	status, err := docstore.StatusOf(fields)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var currentName string
	err = tx.GetContext(ctx, &currentName,
		"SELECT status FROM order_documents WHERE namespace = $1 AND id = $2 FOR UPDATE",
		namespace, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	current, err := models.ParseOrderStatus(currentName)
	if err != nil {
		return fmt.Errorf("order %s: %w", id, err)
	}
	if status < current {
		return fmt.Errorf("%w: %s cannot follow %s", models.ErrInvalidStatus, status, current)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE order_documents SET status = $1, updated_at = NOW() WHERE namespace = $2 AND id = $3",
		status.String(), namespace, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	if err := notify(ctx, tx, namespace, id); err != nil {
		return err
	}

	return tx.Commit()
}

// notify queues a change notification that Postgres delivers on commit
func notify(ctx context.Context, tx *sqlx.Tx, namespace, id string) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", changesChannel, documentPath(namespace, id)); err != nil {
		return fmt.Errorf("failed to queue change notification: %w", err)
	}
	return nil
}

func (r orderRow) toOrder() (*models.Order, error) {
	var items []models.OrderItem
	if err := json.Unmarshal(r.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items of order %s: %w", r.ID, err)
	}

	status, err := models.ParseOrderStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", r.ID, err)
	}

	return &models.Order{
		ID:          r.ID,
		UserID:      r.UserID,
		Items:       items,
		TotalAmount: r.TotalAmount,
		Status:      status,
		CreatedAt:   r.CreatedAt.UTC(),
	}, nil
}

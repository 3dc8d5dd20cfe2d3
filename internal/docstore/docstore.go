// Package docstore defines the remote order-document store the storefront
// depends on, together with an in-process implementation.
package docstore

import (
	"context"

	"storefront/internal/models"
)

// Fields is a partial update of an order document, keyed by json field name
type Fields map[string]interface{}

// SnapshotFunc receives the current document. exists is false when no
// document is stored under the subscribed id.
type SnapshotFunc func(order *models.Order, exists bool)

// ErrorFunc receives a terminal subscription error
type ErrorFunc func(err error)

// Unsubscribe stops a subscription. It is idempotent; no callback of the
// subscription runs after it returns.
type Unsubscribe func()

// Store is the document store holding order records.
//
// Subscribe delivers the current state immediately and then every change.
// onError fires at most once and ends the stream.
type Store interface {
	Create(ctx context.Context, namespace string, order *models.Order) (string, error)
	Get(ctx context.Context, namespace, id string) (*models.Order, error)
	List(ctx context.Context, namespace string) ([]models.Order, error)
	Update(ctx context.Context, namespace, id string, fields Fields) error
	Subscribe(namespace, id string, onSnapshot SnapshotFunc, onError ErrorFunc) Unsubscribe
}

// StatusField is the document field carrying the order status
const StatusField = "status"

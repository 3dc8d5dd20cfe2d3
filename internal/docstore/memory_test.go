package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ns = "users/u1/orders"

func newOrder() *models.Order {
	return &models.Order{
		UserID: "u1",
		Items: []models.OrderItem{
			{ID: "p1", Name: "Mug", Price: decimal.RequireFromString("4.50"), Quantity: 2},
		},
		TotalAmount: decimal.RequireFromString("9.00"),
		Status:      models.OrderStatusProcessing,
	}
}

type recorder struct {
	snapshots []*models.Order
	missing   int
	errs      []error
}

func (r *recorder) onSnapshot(o *models.Order, exists bool) {
	if !exists {
		r.missing++
		return
	}
	r.snapshots = append(r.snapshots, o)
}

func (r *recorder) onError(err error) {
	r.errs = append(r.errs, err)
}

func TestMemoryCreateAssignsIDAndTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return at }), WithIDGenerator(func() string { return "o1" }))

	id, err := m.Create(context.Background(), ns, newOrder())
	require.NoError(t, err)
	assert.Equal(t, "o1", id)

	got, err := m.Get(context.Background(), ns, id)
	require.NoError(t, err)
	assert.Equal(t, at, got.CreatedAt)
	assert.Equal(t, models.OrderStatusProcessing, got.Status)
}

func TestMemoryNamespacesAreIsolated(t *testing.T) {
	m := NewMemory()
	id, err := m.Create(context.Background(), ns, newOrder())
	require.NoError(t, err)

	_, err = m.Get(context.Background(), "users/u2/orders", id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	list, err := m.List(context.Background(), "users/u2/orders")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = m.List(context.Background(), ns)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemorySubscribeDeliversCurrentAndUpdates(t *testing.T) {
	m := NewMemory()
	id, err := m.Create(context.Background(), ns, newOrder())
	require.NoError(t, err)

	rec := &recorder{}
	unsubscribe := m.Subscribe(ns, id, rec.onSnapshot, rec.onError)
	require.Len(t, rec.snapshots, 1)

	require.NoError(t, m.Update(context.Background(), ns, id, Fields{StatusField: models.OrderStatusConfirmed}))
	require.Len(t, rec.snapshots, 2)
	assert.Equal(t, models.OrderStatusConfirmed, rec.snapshots[1].Status)

	unsubscribe()
	unsubscribe()
	require.NoError(t, m.Update(context.Background(), ns, id, Fields{StatusField: "Shipped"}))
	assert.Len(t, rec.snapshots, 2)
}

func TestMemorySubscribeMissingDocument(t *testing.T) {
	m := NewMemory()
	rec := &recorder{}

	m.Subscribe(ns, "nope", rec.onSnapshot, rec.onError)

	assert.Equal(t, 1, rec.missing)
	assert.Empty(t, rec.snapshots)
}

func TestMemoryUpdateRejectsRegressionAndOtherFields(t *testing.T) {
	m := NewMemory()
	id, err := m.Create(context.Background(), ns, newOrder())
	require.NoError(t, err)
	require.NoError(t, m.Update(context.Background(), ns, id, Fields{StatusField: models.OrderStatusShipped}))

	err = m.Update(context.Background(), ns, id, Fields{StatusField: models.OrderStatusConfirmed})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)

	err = m.Update(context.Background(), ns, id, Fields{"totalAmount": "0"})
	assert.Error(t, err)

	err = m.Update(context.Background(), ns, "missing", Fields{StatusField: models.OrderStatusShipped})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryFailSubscriptionsEndsStream(t *testing.T) {
	m := NewMemory()
	id, err := m.Create(context.Background(), ns, newOrder())
	require.NoError(t, err)

	rec := &recorder{}
	m.Subscribe(ns, id, rec.onSnapshot, rec.onError)

	boom := errors.New("connection reset")
	m.FailSubscriptions(ns, id, boom)
	require.NoError(t, m.Update(context.Background(), ns, id, Fields{StatusField: models.OrderStatusConfirmed}))

	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], boom)
	assert.Len(t, rec.snapshots, 1)
}

func TestMemoryClose(t *testing.T) {
	m := NewMemory()
	rec := &recorder{}
	m.Subscribe(ns, "x", rec.onSnapshot, rec.onError)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], ErrClosed)

	_, err := m.Create(context.Background(), ns, newOrder())
	assert.ErrorIs(t, err, ErrClosed)
}

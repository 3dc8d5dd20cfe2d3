package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/cart"
	"storefront/internal/docstore"
	"storefront/internal/identity"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Create(ctx context.Context, namespace string, order *models.Order) (string, error) {
	args := m.Called(ctx, namespace, order)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, namespace, id string) (*models.Order, error) {
	args := m.Called(ctx, namespace, id)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

func (m *mockStore) List(ctx context.Context, namespace string) ([]models.Order, error) {
	args := m.Called(ctx, namespace)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, namespace, id string, fields docstore.Fields) error {
	return m.Called(ctx, namespace, id, fields).Error(0)
}

func (m *mockStore) Subscribe(namespace, id string, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) docstore.Unsubscribe {
	m.Called(namespace, id)
	return func() {}
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderSubmitted(ctx context.Context, event *models.OrderSubmittedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func product(id, price string) models.Product {
	return models.Product{ID: id, Name: "Product " + id, Price: decimal.RequireFromString(price)}
}

func filledCart() *cart.Store {
	c := cart.NewStore()
	c.Dispatch(cart.AddItem{Product: product("prod1", "99.99")})
	c.Dispatch(cart.AddItem{Product: product("prod1", "99.99")})
	c.Dispatch(cart.AddItem{Product: product("prod2", "0.01")})
	return c
}

func TestBuildOrderSnapshotsCart(t *testing.T) {
	c := filledCart()

	order := BuildOrder(c.State(), "u1")

	assert.Equal(t, "u1", order.UserID)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Equal(t, "199.99", order.TotalAmount.StringFixed(2))
	require.Len(t, order.Items, 2)
	assert.Equal(t, models.OrderItem{ID: "prod1", Name: "Product prod1", Price: decimal.RequireFromString("99.99"), Quantity: 2}, order.Items[0])

	// Later cart changes do not reach the snapshot.
	c.Dispatch(cart.AddItem{Product: product("prod1", "99.99")})
	c.Dispatch(cart.ClearCart{})
	assert.Len(t, order.Items, 2)
	assert.Equal(t, 2, order.Items[0].Quantity)
}

func TestSubmitSuccess(t *testing.T) {
	store := &mockStore{}
	publisher := &mockPublisher{}
	svc := NewCheckoutService(store, publisher)
	c := filledCart()
	createdAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	store.On("Create", mock.Anything, "users/u1/orders", mock.MatchedBy(func(o *models.Order) bool {
		return o.Status == models.OrderStatusProcessing && o.TotalAmount.Equal(decimal.RequireFromString("199.99"))
	})).Return("o1", nil)
	store.On("Get", mock.Anything, "users/u1/orders", "o1").Return(&models.Order{ID: "o1", CreatedAt: createdAt}, nil)
	publisher.On("PublishOrderSubmitted", mock.Anything, mock.MatchedBy(func(e *models.OrderSubmittedEvent) bool {
		return e.OrderID == "o1" && e.UserID == "u1" && e.EventType == models.EventTypeOrderSubmitted
	})).Return(nil)

	order, err := svc.Submit(context.Background(), c, identity.ReadySession("u1"))
	require.NoError(t, err)

	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, createdAt, order.CreatedAt)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Empty(t, c.State())
	store.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestSubmitNotReady(t *testing.T) {
	store := &mockStore{}
	svc := NewCheckoutService(store, nil)
	c := filledCart()

	_, err := svc.Submit(context.Background(), c, identity.NewSession())

	assert.ErrorIs(t, err, models.ErrNotReady)
	assert.Len(t, c.State(), 2)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitEmptyCart(t *testing.T) {
	store := &mockStore{}
	svc := NewCheckoutService(store, nil)

	_, err := svc.Submit(context.Background(), cart.NewStore(), identity.ReadySession("u1"))

	assert.ErrorIs(t, err, models.ErrEmptyCart)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitWriteFailedKeepsCart(t *testing.T) {
	store := &mockStore{}
	publisher := &mockPublisher{}
	svc := NewCheckoutService(store, publisher)
	c := filledCart()
	before := c.State()

	store.On("Create", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("unavailable"))

	_, err := svc.Submit(context.Background(), c, identity.ReadySession("u1"))

	assert.ErrorIs(t, err, models.ErrWriteFailed)
	assert.Equal(t, before, c.State())
	store.AssertNumberOfCalls(t, "Create", 1)
	publisher.AssertNotCalled(t, "PublishOrderSubmitted", mock.Anything, mock.Anything)
}

func TestSubmitPublishFailureIsNotFatal(t *testing.T) {
	store := docstore.NewMemory()
	publisher := &mockPublisher{}
	publisher.On("PublishOrderSubmitted", mock.Anything, mock.Anything).Return(errors.New("kafka down"))
	svc := NewCheckoutService(store, publisher)

	order, err := svc.Submit(context.Background(), filledCart(), identity.ReadySession("u1"))
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), "users/u1/orders", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, stored.Status)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestOrdersAreScopedToIdentity(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewCheckoutService(store, nil)
	alice := identity.ReadySession("alice")
	bob := identity.ReadySession("bob")

	order, err := svc.Submit(context.Background(), filledCart(), alice)
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), alice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.GetOrder(context.Background(), bob, order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	list, err := svc.ListOrders(context.Background(), bob)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.ListOrders(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListOrders(context.Background(), identity.NewSession())
	assert.ErrorIs(t, err, models.ErrNotReady)
}

// gatedStore holds every Create until release is closed
type gatedStore struct {
	*docstore.Memory
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Memory:  docstore.NewMemory(),
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) Create(ctx context.Context, namespace string, order *models.Order) (string, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Memory.Create(ctx, namespace, order)
}

func TestSubmitKeepsItemsAddedDuringWrite(t *testing.T) {
	store := newGatedStore()
	svc := NewCheckoutService(store, nil)
	c := cart.NewStore()
	c.Dispatch(cart.AddItem{Product: product("prod1", "99.99")})

	type result struct {
		order *models.Order
		err   error
	}
	done := make(chan result, 1)
	go func() {
		order, err := svc.Submit(context.Background(), c, identity.ReadySession("u1"))
		done <- result{order, err}
	}()

	<-store.entered
	c.Dispatch(cart.AddItem{Product: product("prod2", "199.99")})
	close(store.release)

	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.order.Items, 1)
	assert.Equal(t, "prod1", res.order.Items[0].ID)

	left := c.State()
	require.Len(t, left, 1)
	assert.Equal(t, "prod2", left[0].ID)
	assert.Equal(t, 1, left[0].Quantity)
}

func TestConcurrentSubmitsPersistOneOrder(t *testing.T) {
	store := newGatedStore()
	svc := NewCheckoutService(store, nil)
	c := filledCart()
	session := identity.ReadySession("u1")

	first := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), c, session)
		first <- err
	}()
	<-store.entered

	_, err := svc.Submit(context.Background(), c, session)
	assert.ErrorIs(t, err, models.ErrCheckoutInProgress)

	close(store.release)
	require.NoError(t, <-first)

	_, err = svc.Submit(context.Background(), c, session)
	assert.ErrorIs(t, err, models.ErrEmptyCart)

	orders, err := store.List(context.Background(), "users/u1/orders")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestSubmitAfterWriteFailureCanRetry(t *testing.T) {
	store := &mockStore{}
	svc := NewCheckoutService(store, nil)
	c := filledCart()

	store.On("Create", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("unavailable")).Once()
	store.On("Create", mock.Anything, mock.Anything, mock.Anything).Return("o2", nil).Once()
	store.On("Get", mock.Anything, mock.Anything, "o2").Return(&models.Order{ID: "o2"}, nil)

	_, err := svc.Submit(context.Background(), c, identity.ReadySession("u1"))
	require.ErrorIs(t, err, models.ErrWriteFailed)

	order, err := svc.Submit(context.Background(), c, identity.ReadySession("u1"))
	require.NoError(t, err)
	assert.Equal(t, "o2", order.ID)
	assert.Empty(t, c.State())
}

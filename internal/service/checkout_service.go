package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/cart"
	"storefront/internal/docstore"
	"storefront/internal/identity"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderEventPublisher announces submitted orders
type OrderEventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, event *models.OrderSubmittedEvent) error
}

// CheckoutService turns carts into persisted orders
type CheckoutService struct {
	store     docstore.Store
	publisher OrderEventPublisher
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. publisher may be nil.
func NewCheckoutService(store docstore.Store, publisher OrderEventPublisher) *CheckoutService {
	return &CheckoutService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// BuildOrder snapshots a cart into a new order owned by owner. The snapshot
// shares nothing with the cart or the catalog.
func BuildOrder(state cart.State, owner identity.Identity) *models.Order {
	items := make([]models.OrderItem, 0, len(state))
	for _, li := range state {
		items = append(items, models.OrderItem{
			ID:       li.ID,
			Name:     li.Name,
			Price:    li.Price,
			Quantity: li.Quantity,
		})
	}

	return &models.Order{
		UserID:      string(owner),
		Items:       items,
		TotalAmount: cart.Total(state),
		Status:      models.OrderStatusProcessing,
	}
}

// Submit persists the cart as an order and removes the ordered items from
// the cart. Items added while the write is in flight stay in the cart.
//
// It fails with models.ErrNotReady before identity bootstrap, with
// models.ErrEmptyCart for an empty cart and with models.ErrCheckoutInProgress
// while another submission of the same cart runs, all without contacting the
// store. A rejected write wraps models.ErrWriteFailed and leaves the cart intact.
func (s *CheckoutService) Submit(ctx context.Context, c *cart.Store, session *identity.Session) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Submit")
	defer span.End()

	owner, err := session.Identity()
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues("not_ready").Inc()
		return nil, err
	}

	state, err := c.BeginCheckout()
	switch {
	case errors.Is(err, models.ErrEmptyCart):
		util.OrdersRejectedTotal.WithLabelValues("empty_cart").Inc()
		return nil, err
	case err != nil:
		util.OrdersRejectedTotal.WithLabelValues("in_progress").Inc()
		return nil, err
	}

	order := BuildOrder(state, owner)
	namespace := models.OrdersNamespace(string(owner))

	start := time.Now()
	id, err := s.store.Create(ctx, namespace, order)
	util.OrderSubmitLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.AbortCheckout()
		util.RecordError(span, err)
		util.OrdersRejectedTotal.WithLabelValues("write_failed").Inc()
		s.logger.Error("Failed to persist order",
			zap.String("user_id", string(owner)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: create order: %w", models.ErrWriteFailed, err)
	}
	order.ID = id

	// The store assigns createdAt; read it back for the caller.
	if stored, err := s.store.Get(ctx, namespace, id); err == nil {
		order.CreatedAt = stored.CreatedAt
	} else {
		s.logger.Warn("Failed to read back order", zap.String("order_id", id), zap.Error(err))
	}

	c.CompleteCheckout(state)

	util.OrdersSubmittedTotal.Inc()
	s.logger.Info("Order submitted",
		zap.String("order_id", id),
		zap.String("user_id", string(owner)),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	s.publishSubmitted(ctx, order)
	return order, nil
}

func (s *CheckoutService) publishSubmitted(ctx context.Context, order *models.Order) {
	if s.publisher == nil {
		return
	}

	event := &models.OrderSubmittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderSubmitted,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       order.Items,
	}

	if err := s.publisher.PublishOrderSubmitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderSubmitted event", zap.Error(err))
	}
}

// GetOrder returns one of the session's orders
func (s *CheckoutService) GetOrder(ctx context.Context, session *identity.Session, orderID string) (*models.Order, error) {
	owner, err := session.Identity()
	if err != nil {
		return nil, err
	}

	order, err := s.store.Get(ctx, models.OrdersNamespace(string(owner)), orderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListOrders returns the session's orders, newest first
func (s *CheckoutService) ListOrders(ctx context.Context, session *identity.Session) ([]models.Order, error) {
	owner, err := session.Identity()
	if err != nil {
		return nil, err
	}

	orders, err := s.store.List(ctx, models.OrdersNamespace(string(owner)))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

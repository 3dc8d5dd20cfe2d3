package tracker

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/docstore"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Advancer moves an order to its next status. It is the only writer of
// order status in simulated mode; a deployment with a real fulfillment
// system runs trackers without one.
type Advancer interface {
	Advance(ctx context.Context, namespace string, order models.Order, next models.OrderStatus) error
}

// StatusPublisher announces status changes
type StatusPublisher interface {
	PublishOrderStatusAdvanced(ctx context.Context, event *models.OrderStatusAdvancedEvent) error
}

// SimulatedAdvancer writes the next status straight back to the store
type SimulatedAdvancer struct {
	store     docstore.Store
	publisher StatusPublisher
	logger    *zap.Logger
}

// NewSimulatedAdvancer creates an advancer. publisher may be nil.
func NewSimulatedAdvancer(store docstore.Store, publisher StatusPublisher) *SimulatedAdvancer {
	return &SimulatedAdvancer{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Advance writes next to the order's status field
func (a *SimulatedAdvancer) Advance(ctx context.Context, namespace string, order models.Order, next models.OrderStatus) error {
	ctx, span := util.StartSpan(ctx, "SimulatedAdvancer.Advance")
	defer span.End()

	if err := a.store.Update(ctx, namespace, order.ID, docstore.Fields{docstore.StatusField: next}); err != nil {
		util.RecordError(span, err)
		util.OrderStatusAdvanceFailedTotal.Inc()
		return fmt.Errorf("%w: advance order %s to %s: %w", models.ErrWriteFailed, order.ID, next, err)
	}

	util.OrderStatusAdvancesTotal.WithLabelValues(next.String()).Inc()
	a.logger.Info("Order status advanced",
		zap.String("order_id", order.ID),
		zap.String("from", order.Status.String()),
		zap.String("to", next.String()))

	if a.publisher == nil {
		return nil
	}

	event := &models.OrderStatusAdvancedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusAdvanced,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		From:    order.Status,
		To:      next,
	}
	if err := a.publisher.PublishOrderStatusAdvanced(ctx, event); err != nil {
		a.logger.Error("Failed to publish OrderStatusAdvanced event", zap.Error(err))
	}

	return nil
}

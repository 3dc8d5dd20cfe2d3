package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/docstore"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

const processedEventTTL = 24 * time.Hour

// EventDeduplicator remembers processed event ids
type EventDeduplicator interface {
	// MarkProcessed records id and reports false if it was already recorded
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// FulfillmentService applies status updates coming from an external
// fulfillment system
type FulfillmentService struct {
	store  docstore.Store
	dedup  EventDeduplicator
	logger *zap.Logger
}

// NewFulfillmentService creates a fulfillment service. dedup may be nil.
func NewFulfillmentService(store docstore.Store, dedup EventDeduplicator) *FulfillmentService {
	return &FulfillmentService{
		store:  store,
		dedup:  dedup,
		logger: util.GetLogger(),
	}
}

// HandleFulfillmentUpdate writes the event's status to the order. Duplicate
// events and updates that would move an order backwards are dropped.
func (fs *FulfillmentService) HandleFulfillmentUpdate(ctx context.Context, event *models.FulfillmentUpdateEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandleFulfillmentUpdate")
	defer span.End()

	if event.OrderID == "" || event.UserID == "" {
		util.FulfillmentEventsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("fulfillment event %s lacks order or user id", event.EventID)
	}

	if fs.dedup != nil && event.EventID != "" {
		fresh, err := fs.dedup.MarkProcessed(ctx, event.EventID, processedEventTTL)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if !fresh {
			util.FulfillmentEventsTotal.WithLabelValues("duplicate").Inc()
			fs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}
	}

	namespace := models.OrdersNamespace(event.UserID)
	err := fs.store.Update(ctx, namespace, event.OrderID, docstore.Fields{docstore.StatusField: event.Status})
	switch {
	case err == nil:
		util.FulfillmentEventsTotal.WithLabelValues("applied").Inc()
		util.OrderStatusAdvancesTotal.WithLabelValues(event.Status.String()).Inc()
		fs.logger.Info("Fulfillment update applied",
			zap.String("order_id", event.OrderID),
			zap.String("status", event.Status.String()))
		return nil
	case errors.Is(err, models.ErrInvalidStatus), errors.Is(err, models.ErrNotFound):
		util.FulfillmentEventsTotal.WithLabelValues("rejected").Inc()
		fs.logger.Warn("Fulfillment update rejected",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return nil
	default:
		util.RecordError(span, err)
		util.FulfillmentEventsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: apply fulfillment update: %w", models.ErrWriteFailed, err)
	}
}

package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// FulfillmentWorker consumes external fulfillment events and applies them
// to order documents
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(
	consumer *broker.Consumer,
	fulfillment *service.FulfillmentService,
) *FulfillmentWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnFulfillmentUpdate(fulfillment.HandleFulfillmentUpdate)

	return &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming until ctx is done
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *FulfillmentWorker) Stop() error {
	w.logger.Info("Stopping fulfillment worker")
	return w.consumer.Close()
}

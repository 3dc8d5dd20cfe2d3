package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishOrderSubmitted(t *testing.T) {
	w := &fakeWriter{}
	publisher := NewEventPublisher(&Producer{writer: w, logger: zap.NewNop()})

	event := &models.OrderSubmittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "e1",
			EventType: models.EventTypeOrderSubmitted,
			Timestamp: time.Now(),
		},
		OrderID:     "o1",
		UserID:      "u1",
		TotalAmount: decimal.RequireFromString("12.50"),
	}
	require.NoError(t, publisher.PublishOrderSubmitted(context.Background(), event))

	require.Len(t, w.messages, 1)
	assert.Equal(t, "order-o1", string(w.messages[0].Key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, models.EventTypeOrderSubmitted, decoded["event_type"])
	assert.Equal(t, "12.5", decoded["total_amount"])
}

func TestPublishStatusAdvancedWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	publisher := NewEventPublisher(&Producer{writer: w, logger: zap.NewNop()})

	err := publisher.PublishOrderStatusAdvanced(context.Background(), &models.OrderStatusAdvancedEvent{
		OrderID: "o1",
		From:    models.OrderStatusProcessing,
		To:      models.OrderStatusConfirmed,
	})
	assert.Error(t, err)
}

func TestHandleMessageRoutesFulfillmentUpdates(t *testing.T) {
	handler := NewEventHandler()

	var got *models.FulfillmentUpdateEvent
	handler.OnFulfillmentUpdate(func(_ context.Context, e *models.FulfillmentUpdateEvent) error {
		got = e
		return nil
	})

	value := []byte(`{"event_id":"e1","event_type":"FULFILLMENT_UPDATE","order_id":"o1","user_id":"u1","status":"Shipped"}`)
	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: value}))

	require.NotNil(t, got)
	assert.Equal(t, "o1", got.OrderID)
	assert.Equal(t, models.OrderStatusShipped, got.Status)
}

func TestHandleMessageIgnoresOtherEvents(t *testing.T) {
	handler := NewEventHandler()
	handler.OnFulfillmentUpdate(func(context.Context, *models.FulfillmentUpdateEvent) error {
		t.Fatal("unexpected call")
		return nil
	})

	value := []byte(`{"event_id":"e1","event_type":"ORDER_SUBMITTED"}`)
	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: value}))
}

func TestHandleMessageRejectsBadPayload(t *testing.T) {
	handler := NewEventHandler()
	handler.OnFulfillmentUpdate(func(context.Context, *models.FulfillmentUpdateEvent) error { return nil })

	assert.Error(t, handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))

	value := []byte(`{"event_type":"FULFILLMENT_UPDATE","status":"Teleported"}`)
	assert.Error(t, handler.HandleMessage(context.Background(), kafka.Message{Value: value}))
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderSubmitted      = "ORDER_SUBMITTED"
	EventTypeOrderStatusAdvanced = "ORDER_STATUS_ADVANCED"
	EventTypeFulfillmentUpdate   = "FULFILLMENT_UPDATE"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderSubmittedEvent published when checkout persists an order
type OrderSubmittedEvent struct {
	BaseEvent
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItem     `json:"items"`
}

// OrderStatusAdvancedEvent published when the simulated fulfillment moves an order forward
type OrderStatusAdvancedEvent struct {
	BaseEvent
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
}

// FulfillmentUpdateEvent is consumed from an external fulfillment system
type FulfillmentUpdateEvent struct {
	BaseEvent
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Status  OrderStatus `json:"status"`
}

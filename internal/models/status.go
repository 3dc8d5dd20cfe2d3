package models

import (
	"encoding/json"
	"fmt"
)

// OrderStatus is the position of an order in the fulfillment sequence.
// Values are ordered: a larger value is further along.
type OrderStatus int

// Order statuses
const (
	OrderStatusProcessing OrderStatus = iota
	OrderStatusConfirmed
	OrderStatusShipped
	OrderStatusOutForDelivery
	OrderStatusDelivered
)

var statusNames = [...]string{
	OrderStatusProcessing:     "Processing",
	OrderStatusConfirmed:      "Confirmed",
	OrderStatusShipped:        "Shipped",
	OrderStatusOutForDelivery: "Out for Delivery",
	OrderStatusDelivered:      "Delivered",
}

// ParseOrderStatus parses the wire name of a status
func ParseOrderStatus(s string) (OrderStatus, error) {
	for i, name := range statusNames {
		if name == s {
			return OrderStatus(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Valid reports whether s is one of the defined statuses
func (s OrderStatus) Valid() bool {
	return s >= OrderStatusProcessing && s <= OrderStatusDelivered
}

// IsTerminal reports whether no further transition follows s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered
}

// Next returns the status immediately following s.
// ok is false for Delivered and for invalid values.
func (s OrderStatus) Next() (next OrderStatus, ok bool) {
	if !s.Valid() || s.IsTerminal() {
		return s, false
	}
	return s + 1, true
}

func (s OrderStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("OrderStatus(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalJSON encodes the status as its wire name
func (s OrderStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, int(s))
	}
	return json.Marshal(statusNames[s])
}

// UnmarshalJSON decodes a wire name
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseOrderStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

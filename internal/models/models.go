package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Description string          `db:"description" json:"description"`
	Image       string          `db:"image" json:"image"`
}

// CartLineItem is a product plus its quantity in a cart
type CartLineItem struct {
	Product
	Quantity int `json:"quantity"`
}

// Subtotal returns price * quantity
func (li CartLineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// OrderItem is a line item snapshot captured at submission time
type OrderItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Order represents a persisted customer order
type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// OrdersNamespace returns the collection path holding a user's orders
func OrdersNamespace(userID string) string {
	return "users/" + userID + "/orders"
}

package catalog

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Catalog is the fixed product list, loaded once at startup
type Catalog struct {
	products []models.Product
	byID     map[string]int
}

// Source loads products from persistent storage
type Source interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
}

// New builds a catalog. Ids must be unique and prices non-negative.
func New(products []models.Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]models.Product, 0, len(products)),
		byID:     make(map[string]int, len(products)),
	}

	for _, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("product %q has no id", p.Name)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %q", p.ID)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("product %q has negative price %s", p.ID, p.Price)
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}

	return c, nil
}

// Load builds a catalog from src
func Load(ctx context.Context, src Source) (*Catalog, error) {
	products, err := src.GetProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return New(products)
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := New(builtin)
	if err != nil {
		panic(err)
	}
	return c
}

// List returns all products in catalog order
func (c *Catalog) List() []models.Product {
	return append([]models.Product(nil), c.products...)
}

// Get returns one product
func (c *Catalog) Get(id string) (models.Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.Product{}, false
	}
	return c.products[i], true
}

// Len returns the number of products
func (c *Catalog) Len() int {
	return len(c.products)
}

var builtin = []models.Product{
	{
		ID:          "prod1",
		Name:        "Wireless Headphones",
		Price:       decimal.RequireFromString("99.99"),
		Description: "Over-ear headphones with active noise cancellation.",
		Image:       "/images/headphones.jpg",
	},
	{
		ID:          "prod2",
		Name:        "Smart Watch",
		Price:       decimal.RequireFromString("199.99"),
		Description: "Fitness tracking, notifications and a week of battery.",
		Image:       "/images/watch.jpg",
	},
	{
		ID:          "prod3",
		Name:        "Portable Speaker",
		Price:       decimal.RequireFromString("49.99"),
		Description: "Waterproof bluetooth speaker.",
		Image:       "/images/speaker.jpg",
	},
	{
		ID:          "prod4",
		Name:        "Laptop Stand",
		Price:       decimal.RequireFromString("29.99"),
		Description: "Adjustable aluminium stand.",
		Image:       "/images/stand.jpg",
	},
	{
		ID:          "prod5",
		Name:        "USB-C Hub",
		Price:       decimal.RequireFromString("39.99"),
		Description: "Seven ports including HDMI and ethernet.",
		Image:       "/images/hub.jpg",
	},
	{
		ID:          "prod6",
		Name:        "Mechanical Keyboard",
		Price:       decimal.RequireFromString("129.99"),
		Description: "Hot-swappable switches, RGB backlight.",
		Image:       "/images/keyboard.jpg",
	},
}

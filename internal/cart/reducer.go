package cart

import (
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// State is an ordered list of line items. Order is insertion order.
type State []models.CartLineItem

// Action is a cart state transition request
type Action interface {
	isAction()
}

// AddItem adds one unit of a product
type AddItem struct {
	Product models.Product
}

// RemoveItem removes one unit of a product
type RemoveItem struct {
	ProductID string
}

// ClearCart empties the cart
type ClearCart struct{}

func (AddItem) isAction()    {}
func (RemoveItem) isAction() {}
func (ClearCart) isAction()  {}

// Reduce returns the state after applying action. The input is never modified.
// Actions it does not recognize leave the state unchanged.
func Reduce(state State, action Action) State {
	switch a := action.(type) {
	case AddItem:
		return addItem(state, a.Product)
	case RemoveItem:
		return removeItem(state, a.ProductID)
	case ClearCart:
		return State{}
	default:
		return state
	}
}

func addItem(state State, product models.Product) State {
	next := make(State, len(state), len(state)+1)
	copy(next, state)

	if i := state.indexOf(product.ID); i >= 0 {
		// Display fields stay as they were on first add.
		next[i].Quantity++
		return next
	}

	return append(next, models.CartLineItem{Product: product, Quantity: 1})
}

func removeItem(state State, productID string) State {
	i := state.indexOf(productID)
	if i < 0 {
		return state
	}

	if state[i].Quantity > 1 {
		next := make(State, len(state))
		copy(next, state)
		next[i].Quantity--
		return next
	}

	next := make(State, 0, len(state)-1)
	next = append(next, state[:i]...)
	return append(next, state[i+1:]...)
}

func (s State) indexOf(productID string) int {
	for i := range s {
		if s[i].ID == productID {
			return i
		}
	}
	return -1
}

// Total recomputes the sum of price * quantity over all line items
func Total(state State) decimal.Decimal {
	total := decimal.Zero
	for _, item := range state {
		total = total.Add(item.Subtotal())
	}
	return total
}

// FormatTotal renders the total rounded to 2 decimal places
func FormatTotal(state State) string {
	return Total(state).StringFixed(2)
}

// ItemCount returns the total number of units in the cart
func ItemCount(state State) int {
	n := 0
	for _, item := range state {
		n += item.Quantity
	}
	return n
}

// Subtract removes the quantities in ordered from state. Lines that drop to
// zero are removed; lines and units not in ordered are kept.
func Subtract(state, ordered State) State {
	next := make(State, 0, len(state))
	for _, item := range state {
		if i := ordered.indexOf(item.ID); i >= 0 {
			item.Quantity -= ordered[i].Quantity
		}
		if item.Quantity > 0 {
			next = append(next, item)
		}
	}
	return next
}

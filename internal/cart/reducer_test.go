package cart

import (
	"math/rand"
	"testing"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id, price string) models.Product {
	return models.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: decimal.RequireFromString(price),
	}
}

type unknownAction struct{}

func (unknownAction) isAction() {}

func TestAddItemTwice(t *testing.T) {
	p := product("prod1", "99.99")

	state := Reduce(State{}, AddItem{Product: p})
	state = Reduce(state, AddItem{Product: p})

	require.Len(t, state, 1)
	assert.Equal(t, "prod1", state[0].ID)
	assert.Equal(t, 2, state[0].Quantity)
	assert.Equal(t, "199.98", FormatTotal(state))
}

func TestRemoveLastUnit(t *testing.T) {
	state := State{{Product: product("prod1", "99.99"), Quantity: 1}}

	state = Reduce(state, RemoveItem{ProductID: "prod1"})

	assert.Empty(t, state)
	assert.Equal(t, "0.00", FormatTotal(state))
}

func TestRemoveDecrements(t *testing.T) {
	state := State{{Product: product("prod1", "10"), Quantity: 3}}

	next := Reduce(state, RemoveItem{ProductID: "prod1"})

	require.Len(t, next, 1)
	assert.Equal(t, 2, next[0].Quantity)
	assert.Equal(t, 3, state[0].Quantity, "input must not be modified")
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	state := State{{Product: product("prod1", "10"), Quantity: 1}}

	next := Reduce(state, RemoveItem{ProductID: "missing"})

	assert.Equal(t, state, next)
}

func TestAddKeepsFirstAddFields(t *testing.T) {
	first := product("prod1", "10.00")
	changed := first
	changed.Name = "Renamed"
	changed.Price = decimal.RequireFromString("12.00")

	state := Reduce(State{}, AddItem{Product: first})
	state = Reduce(state, AddItem{Product: changed})

	require.Len(t, state, 1)
	assert.Equal(t, "Product prod1", state[0].Name)
	assert.Equal(t, "20.00", FormatTotal(state))
}

func TestInsertionOrder(t *testing.T) {
	state := State{}
	for _, id := range []string{"c", "a", "b", "a"} {
		state = Reduce(state, AddItem{Product: product(id, "1")})
	}

	ids := make([]string, 0, len(state))
	for _, item := range state {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	state = Reduce(state, RemoveItem{ProductID: "c"})
	assert.Equal(t, "a", state[0].ID)
}

func TestClearCart(t *testing.T) {
	state := State{
		{Product: product("a", "1"), Quantity: 2},
		{Product: product("b", "2"), Quantity: 1},
	}

	state = Reduce(state, ClearCart{})

	assert.Empty(t, state)
	assert.True(t, Total(state).IsZero())
}

func TestUnknownActionIsNoop(t *testing.T) {
	state := State{{Product: product("a", "1"), Quantity: 2}}

	assert.Equal(t, state, Reduce(state, unknownAction{}))
}

func TestRandomSequencesKeepCartConsistent(t *testing.T) {
	catalog := []models.Product{
		product("a", "0.10"),
		product("b", "19.99"),
		product("c", "5"),
		product("d", "0"),
	}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		state := State{}
		want := map[string]int{}

		for step := 0; step < 50; step++ {
			p := catalog[rng.Intn(len(catalog))]
			if rng.Intn(2) == 0 {
				state = Reduce(state, AddItem{Product: p})
				want[p.ID]++
			} else {
				state = Reduce(state, RemoveItem{ProductID: p.ID})
				if want[p.ID] > 0 {
					want[p.ID]--
				}
			}

			seen := map[string]bool{}
			expected := decimal.Zero
			for _, item := range state {
				require.Greater(t, item.Quantity, 0)
				require.False(t, seen[item.ID], "duplicate line item %s", item.ID)
				seen[item.ID] = true
				require.Equal(t, want[item.ID], item.Quantity)
				expected = expected.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			}
			for id, qty := range want {
				if qty > 0 {
					require.True(t, seen[id], "missing line item %s", id)
				}
			}
			require.True(t, expected.Equal(Total(state)))
		}
	}
}

func TestStoreDispatch(t *testing.T) {
	s := NewStore()
	p := product("prod1", "2.50")

	s.Dispatch(AddItem{Product: p})
	s.Dispatch(AddItem{Product: p})
	assert.Equal(t, 2, ItemCount(s.State()))

	s.Dispatch(ClearCart{})
	assert.Empty(t, s.State())
}

func TestRegistryIsolatesIdentities(t *testing.T) {
	r := NewRegistry()

	r.For("alice").Dispatch(AddItem{Product: product("a", "1")})

	assert.Len(t, r.For("alice").State(), 1)
	assert.Empty(t, r.For("bob").State())
	assert.Same(t, r.For("alice"), r.For("alice"))
	assert.Equal(t, 2, r.Len())
}

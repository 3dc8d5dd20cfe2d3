package cart

import (
	"sync"
	"time"

	"storefront/internal/models"
)

// Store holds one cart and applies actions through Reduce
type Store struct {
	mu          sync.Mutex
	state       State
	checkingOut bool
}

// NewStore creates an empty cart store
func NewStore() *Store {
	return &Store{state: State{}}
}

// Dispatch applies an action and returns the resulting state
func (s *Store) Dispatch(action Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Reduce(s.state, action)
	return s.state
}

// State returns the current cart contents
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeginCheckout snapshots the cart for submission. Only one checkout runs at
// a time; a second caller gets models.ErrCheckoutInProgress. An empty cart
// fails with models.ErrEmptyCart and starts nothing.
//
// Every successful call must be followed by CompleteCheckout or AbortCheckout.
func (s *Store) BeginCheckout() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkingOut {
		return nil, models.ErrCheckoutInProgress
	}
	if len(s.state) == 0 {
		return nil, models.ErrEmptyCart
	}
	s.checkingOut = true
	return s.state, nil
}

// CompleteCheckout removes the submitted quantities and ends the checkout.
// Items added while the order was being written stay in the cart.
func (s *Store) CompleteCheckout(submitted State) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = Subtract(s.state, submitted)
	s.checkingOut = false
	return s.state
}

// AbortCheckout ends the checkout and leaves the cart as it is
func (s *Store) AbortCheckout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkingOut = false
}

func (s *Store) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkingOut
}

// DefaultIdleTimeout is how long an untouched cart is kept
const DefaultIdleTimeout = 24 * time.Hour

type registryEntry struct {
	store    *Store
	lastUsed time.Time
}

// Registry hands out one cart store per identity. Carts idle longer than the
// idle timeout are dropped, and past the size cap the least recently used
// cart makes room for a new one. Carts with a checkout in flight are kept.
type Registry struct {
	mu       sync.Mutex
	carts    map[string]*registryEntry
	idle     time.Duration
	maxCarts int
	now      func() time.Time
	swept    time.Time
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithIdleTimeout sets how long an unused cart is kept. Zero keeps carts forever.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idle = d }
}

// WithMaxCarts caps the number of carts held. Zero means no cap.
func WithMaxCarts(n int) RegistryOption {
	return func(r *Registry) { r.maxCarts = n }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		carts: make(map[string]*registryEntry),
		idle:  DefaultIdleTimeout,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.swept = r.now()
	return r
}

// For returns the cart of an identity, creating it on first use
func (r *Registry) For(identity string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.idle > 0 && now.Sub(r.swept) >= r.idle/2 {
		r.pruneLocked(now)
	}

	if e, ok := r.carts[identity]; ok {
		e.lastUsed = now
		return e.store
	}

	if r.maxCarts > 0 && len(r.carts) >= r.maxCarts {
		r.evictOldestLocked()
	}

	e := &registryEntry{store: NewStore(), lastUsed: now}
	r.carts[identity] = e
	return e.store
}

// Prune drops carts idle longer than the idle timeout and returns how many
// were dropped
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked(r.now())
}

func (r *Registry) pruneLocked(now time.Time) int {
	r.swept = now
	if r.idle <= 0 {
		return 0
	}

	dropped := 0
	for id, e := range r.carts {
		if now.Sub(e.lastUsed) > r.idle && !e.store.busy() {
			delete(r.carts, id)
			dropped++
		}
	}
	return dropped
}

func (r *Registry) evictOldestLocked() {
	var (
		oldestID string
		oldest   *registryEntry
	)
	for id, e := range r.carts {
		if e.store.busy() {
			continue
		}
		if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
			oldestID, oldest = id, e
		}
	}
	if oldest != nil {
		delete(r.carts, oldestID)
	}
}

// Len returns the number of carts held
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts)
}

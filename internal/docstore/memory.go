package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
)

// ErrClosed is delivered to subscribers when the store shuts down
var ErrClosed = errors.New("document store closed")

// Memory is an in-process Store. Snapshots are delivered synchronously on the
// writer's goroutine, after the store lock is released.
type Memory struct {
	mu      sync.Mutex
	docs    map[string]*models.Order
	subs    map[string]map[*subscriber]struct{}
	closed  bool
	now     func() time.Time
	idMaker func() string
}

type subscriber struct {
	mu         sync.Mutex
	done       bool
	onSnapshot SnapshotFunc
	onError    ErrorFunc
}

// MemoryOption configures a Memory store
type MemoryOption func(*Memory)

// WithClock sets the source of createdAt timestamps
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithIDGenerator sets the document id generator
func WithIDGenerator(gen func() string) MemoryOption {
	return func(m *Memory) {
		m.idMaker = gen
	}
}

// NewMemory creates an empty in-process store
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		docs:    make(map[string]*models.Order),
		subs:    make(map[string]map[*subscriber]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
		idMaker: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func docKey(namespace, id string) string {
	return namespace + "/" + id
}

// Create stores a new document and returns its assigned id
func (m *Memory) Create(ctx context.Context, namespace string, order *models.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}

	doc := cloneOrder(order)
	doc.ID = m.idMaker()
	doc.CreatedAt = m.now()
	key := docKey(namespace, doc.ID)
	m.docs[key] = doc

	snapshot := cloneOrder(doc)
	subs := m.subscribersLocked(key)
	m.mu.Unlock()

	deliver(subs, snapshot)
	return doc.ID, nil
}

// Get returns a copy of one document
func (m *Memory) Get(ctx context.Context, namespace, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[docKey(namespace, id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return cloneOrder(doc), nil
}

// List returns every document of a namespace, newest first
func (m *Memory) List(ctx context.Context, namespace string) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	orders := make([]models.Order, 0)
	for key, doc := range m.docs {
		if key == docKey(namespace, doc.ID) {
			orders = append(orders, *cloneOrder(doc))
		}
	}
	m.mu.Unlock()

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// Update applies a partial update. Only the status field is writable.
func (m *Memory) Update(ctx context.Context, namespace, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	key := docKey(namespace, id)
	doc, ok := m.docs[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}

	updated := cloneOrder(doc)
	if err := ApplyFields(updated, fields); err != nil {
		m.mu.Unlock()
		return err
	}
	m.docs[key] = updated

	snapshot := cloneOrder(updated)
	subs := m.subscribersLocked(key)
	m.mu.Unlock()

	deliver(subs, snapshot)
	return nil
}

// Subscribe registers callbacks for one document and delivers its current
// state before returning.
func (m *Memory) Subscribe(namespace, id string, onSnapshot SnapshotFunc, onError ErrorFunc) Unsubscribe {
	sub := &subscriber{onSnapshot: onSnapshot, onError: onError}
	key := docKey(namespace, id)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.fail(ErrClosed)
		return func() {}
	}

	if m.subs[key] == nil {
		m.subs[key] = make(map[*subscriber]struct{})
	}
	m.subs[key][sub] = struct{}{}

	var snapshot *models.Order
	if doc, ok := m.docs[key]; ok {
		snapshot = cloneOrder(doc)
	}
	m.mu.Unlock()

	sub.snapshot(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[key], sub)
			if len(m.subs[key]) == 0 {
				delete(m.subs, key)
			}
			m.mu.Unlock()

			sub.mu.Lock()
			sub.done = true
			sub.mu.Unlock()
		})
	}
}

// Close ends every subscription with ErrClosed and rejects further writes
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	var all []*subscriber
	for _, set := range m.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	m.subs = make(map[string]map[*subscriber]struct{})
	m.mu.Unlock()

	for _, sub := range all {
		sub.fail(ErrClosed)
	}
	return nil
}

// FailSubscriptions ends the subscriptions of one document with err,
// as a dropped transport would
func (m *Memory) FailSubscriptions(namespace, id string, err error) {
	key := docKey(namespace, id)

	m.mu.Lock()
	subs := m.subscribersLocked(key)
	delete(m.subs, key)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

func (m *Memory) subscribersLocked(key string) []*subscriber {
	set := m.subs[key]
	subs := make([]*subscriber, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	return subs
}

func deliver(subs []*subscriber, snapshot *models.Order) {
	for _, sub := range subs {
		sub.snapshot(cloneOrder(snapshot))
	}
}

func (s *subscriber) snapshot(order *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.onSnapshot(order, order != nil)
}

func (s *subscriber) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	if s.onError != nil {
		s.onError(err)
	}
}

func cloneOrder(o *models.Order) *models.Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	return &c
}

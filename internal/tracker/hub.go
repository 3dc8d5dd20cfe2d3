package tracker

import (
	"context"
	"sync"
)

// Watcher receives the states of a shared session. Callbacks for one order
// are serialized and must not block or call the release func.
type Watcher struct {
	OnChange       func(State)
	OnAdvanceError func(error)
}

// Hub shares one session per order among all of its watchers, so an order
// has a single pending advance however many clients follow it.
type Hub struct {
	cfg Config

	mu    sync.Mutex
	feeds map[string]*feed
}

type feed struct {
	session *Session

	mu       sync.Mutex
	nextID   int
	watchers map[int]Watcher
}

// NewHub creates a hub whose sessions use cfg
func NewHub(cfg Config) *Hub {
	return &Hub{
		cfg:   cfg.withDefaults(),
		feeds: make(map[string]*feed),
	}
}

// Watch follows orderID in namespace. A watcher joining a running session
// first gets its current state. The returned func ends delivery to w; the
// session stops when its last watcher leaves.
func (h *Hub) Watch(namespace, orderID string, w Watcher) (release func()) {
	key := namespace + "/" + orderID

	h.mu.Lock()
	f, joined := h.feeds[key]
	if !joined {
		f = &feed{watchers: make(map[int]Watcher)}
		f.session = newSession(context.Background(), h.cfg, namespace, orderID, sessionOptions{
			onChange: f.broadcast,
			onError:  f.broadcastError,
		})
		h.feeds[key] = f
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.watchers[id] = w
	if joined && w.OnChange != nil {
		if state := f.session.State(); state.Phase != PhaseLoading {
			w.OnChange(state)
		}
	}
	f.mu.Unlock()
	h.mu.Unlock()

	if !joined {
		f.session.start()
	}

	var once sync.Once
	return func() {
		once.Do(func() { h.release(key, f, id) })
	}
}

func (h *Hub) release(key string, f *feed, id int) {
	h.mu.Lock()
	f.mu.Lock()
	delete(f.watchers, id)
	last := len(f.watchers) == 0
	f.mu.Unlock()
	if last && h.feeds[key] == f {
		delete(h.feeds, key)
	}
	h.mu.Unlock()

	if last {
		f.session.Stop()
	}
}

// Sessions returns the number of orders being followed
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

func (f *feed) broadcast(state State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.watchers {
		if w.OnChange != nil {
			w.OnChange(state)
		}
	}
}

func (f *feed) broadcastError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.watchers {
		if w.OnAdvanceError != nil {
			w.OnAdvanceError(err)
		}
	}
}

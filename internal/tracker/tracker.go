package tracker

import (
	"context"
	"sync"
	"time"

	"storefront/internal/docstore"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Config holds the collaborators shared by every session of a tracker
type Config struct {
	Store docstore.Store
	// Advancer is nil when status is driven by an external fulfillment feed;
	// sessions then arm no timers.
	Advancer  Advancer
	Scheduler Scheduler
	Interval  time.Duration
	Logger    *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Scheduler == nil {
		c.Scheduler = RealScheduler{}
	}
	if c.Interval <= 0 {
		c.Interval = DefaultAdvanceInterval
	}
	if c.Logger == nil {
		c.Logger = util.ComponentLogger("tracker")
	}
	return c
}

type sessionOptions struct {
	onChange func(State)
	onError  func(error)
}

// SessionOption configures one tracking session
type SessionOption func(*sessionOptions)

// OnChange registers a callback invoked after every state change
func OnChange(fn func(State)) SessionOption {
	return func(o *sessionOptions) {
		o.onChange = fn
	}
}

// OnAdvanceError registers a callback for rejected status writes. The
// session stays active; no retry is attempted.
func OnAdvanceError(fn func(error)) SessionOption {
	return func(o *sessionOptions) {
		o.onError = fn
	}
}

// Tracker follows one order at a time. Switching orders stops the previous
// session, including its timer.
type Tracker struct {
	cfg Config

	mu      sync.Mutex
	current *Session
}

// New creates a tracker
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg.withDefaults()}
}

// Track starts following orderID in namespace and returns the new session
func (t *Tracker) Track(ctx context.Context, namespace, orderID string, opts ...SessionOption) *Session {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}

	session := newSession(ctx, t.cfg, namespace, orderID, o)

	t.mu.Lock()
	previous := t.current
	t.current = session
	t.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}

	session.start()
	return session
}

// Current returns the active session, or nil
func (t *Tracker) Current() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Stop ends the current session. It is idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	session := t.current
	t.current = nil
	t.mu.Unlock()

	if session != nil {
		session.Stop()
	}
}

package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/docstore"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// DefaultAdvanceInterval is the delay between a snapshot and the status
// advance it schedules
const DefaultAdvanceInterval = 3 * time.Second

// Phase is the lifecycle position of a tracking session
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseActive
	PhaseNotFound
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseActive:
		return "active"
	case PhaseNotFound:
		return "not_found"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is what a session currently shows for its order
type State struct {
	OrderID string
	Phase   Phase
	// Order is the last accepted snapshot. Set only when Phase is PhaseActive.
	Order *models.Order
	// Err wraps models.ErrNotFound or models.ErrSubscriptionFailed
	Err error
}

// Status returns the displayed status. ok is false unless the session is active.
func (s State) Status() (status models.OrderStatus, ok bool) {
	if s.Phase != PhaseActive || s.Order == nil {
		return 0, false
	}
	return s.Order.Status, true
}

// Session tracks one order: it holds the subscription and the single
// pending-advance timer for that order.
//
// Callbacks must not call Stop synchronously.
type Session struct {
	namespace string
	orderID   string
	store     docstore.Store
	advancer  Advancer
	scheduler Scheduler
	interval  time.Duration
	logger    *zap.Logger
	onChange  func(State)
	onError   func(error)

	ctx    context.Context
	cancel context.CancelFunc

	// cbMu serializes callbacks to the owner and lets Stop wait them out
	cbMu sync.Mutex

	mu          sync.Mutex
	state       State
	timer       Timer
	generation  uint64
	started     bool
	stopped     bool
	unsubscribe docstore.Unsubscribe
}

func newSession(ctx context.Context, cfg Config, namespace, orderID string, opts sessionOptions) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		namespace: namespace,
		orderID:   orderID,
		store:     cfg.Store,
		advancer:  cfg.Advancer,
		scheduler: cfg.Scheduler,
		interval:  cfg.Interval,
		logger:    cfg.Logger.With(zap.String("order_id", orderID)),
		onChange:  opts.onChange,
		onError:   opts.onError,
		ctx:       ctx,
		cancel:    cancel,
		state:     State{OrderID: orderID, Phase: PhaseLoading},
	}
}

// start opens the subscription. The store may deliver the first snapshot
// before Subscribe returns.
func (s *Session) start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	util.TrackingSessionsActive.Inc()
	unsubscribe := s.store.Subscribe(s.namespace, s.orderID, s.handleSnapshot, s.handleError)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// OrderID returns the tracked order id
func (s *Session) OrderID() string {
	return s.orderID
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stopped reports whether Stop has been called
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Stop ends the subscription and cancels the armed timer. It is idempotent
// and safe before the first snapshot. No callback runs after it returns.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancelTimerLocked()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}

	// Wait out a callback that is already running.
	s.cbMu.Lock()
	s.cbMu.Unlock()

	if started {
		util.TrackingSessionsActive.Dec()
	}
	s.logger.Debug("Tracking stopped")
}

func (s *Session) handleSnapshot(order *models.Order, exists bool) {
	s.mu.Lock()
	if s.stopped || s.terminalLocked() {
		s.mu.Unlock()
		return
	}

	if !exists {
		s.cancelTimerLocked()
		s.state = State{
			OrderID: s.orderID,
			Phase:   PhaseNotFound,
			Err:     fmt.Errorf("%w: %s", models.ErrNotFound, s.orderID),
		}
		state := s.state
		s.mu.Unlock()

		util.TrackingSessionsEndedTotal.WithLabelValues("not_found").Inc()
		s.logger.Info("Tracked order not found")
		s.emitChange(state)
		return
	}

	if current, ok := s.state.Status(); ok && order.Status < current {
		s.mu.Unlock()
		s.logger.Warn("Ignoring stale order snapshot",
			zap.String("displayed", current.String()),
			zap.String("received", order.Status.String()))
		return
	}

	s.state = State{OrderID: s.orderID, Phase: PhaseActive, Order: order}
	s.cancelTimerLocked()
	if !order.Status.IsTerminal() && s.advancer != nil {
		s.armTimerLocked()
	}
	state := s.state
	s.mu.Unlock()

	if order.Status.IsTerminal() {
		util.TrackingSessionsEndedTotal.WithLabelValues("delivered").Inc()
	}
	s.emitChange(state)
}

func (s *Session) handleError(err error) {
	s.mu.Lock()
	if s.stopped || s.terminalLocked() {
		s.mu.Unlock()
		return
	}
	s.cancelTimerLocked()
	s.state = State{
		OrderID: s.orderID,
		Phase:   PhaseFailed,
		Err:     fmt.Errorf("%w: %w", models.ErrSubscriptionFailed, err),
	}
	state := s.state
	s.mu.Unlock()

	util.TrackingSessionsEndedTotal.WithLabelValues("failed").Inc()
	s.logger.Error("Order subscription failed", zap.Error(err))
	s.emitChange(state)
}

// armTimerLocked replaces the pending advance. The generation check makes a
// replaced timer that already started firing a no-op.
func (s *Session) armTimerLocked() {
	generation := s.generation
	s.timer = s.scheduler.AfterFunc(s.interval, func() {
		s.fire(generation)
	})
}

func (s *Session) cancelTimerLocked() {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) fire(generation uint64) {
	s.mu.Lock()
	if s.stopped || generation != s.generation || s.state.Phase != PhaseActive {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	order := *s.state.Order
	s.mu.Unlock()

	next, ok := order.Status.Next()
	if !ok {
		return
	}

	// The write runs unlocked: a synchronous store re-enters handleSnapshot.
	if err := s.advancer.Advance(s.ctx, s.namespace, order, next); err != nil {
		s.logger.Error("Failed to advance order status",
			zap.String("next", next.String()),
			zap.Error(err))
		s.emitError(err)
	}
}

func (s *Session) terminalLocked() bool {
	return s.state.Phase == PhaseNotFound || s.state.Phase == PhaseFailed
}

func (s *Session) emitChange(state State) {
	if s.onChange == nil {
		return
	}
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.Stopped() {
		return
	}
	s.onChange(state)
}

func (s *Session) emitError(err error) {
	if s.onError == nil {
		return
	}
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.Stopped() {
		return
	}
	s.onError(err)
}

// pendingTimer reports whether an advance is armed
func (s *Session) pendingTimer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

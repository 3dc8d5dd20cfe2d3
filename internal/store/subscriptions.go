package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/docstore"
	"storefront/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

var errListenerUnavailable = errors.New("change notifications need a database URL")

// subscription re-reads its document whenever it is kicked. Kicks coalesce,
// so a burst of writes yields at least one snapshot of the latest state.
type subscription struct {
	namespace string
	id        string
	kick      chan struct{}
	closing   chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func (sub *subscription) wake() {
	select {
	case sub.kick <- struct{}{}:
	default:
	}
}

// Subscribe delivers the document's current state and then a fresh snapshot
// after every committed write to it. Unsubscribe waits for a running
// callback to return, so it must not be called from inside one.
func (s *Store) Subscribe(namespace, id string, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) docstore.Unsubscribe {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		namespace: namespace,
		id:        id,
		kick:      make(chan struct{}, 1),
		closing:   make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	key := documentPath(namespace, id)
	s.mu.Lock()
	err := s.ensureListenerLocked()
	if err == nil {
		if s.subs[key] == nil {
			s.subs[key] = make(map[*subscription]struct{})
		}
		s.subs[key][sub] = struct{}{}
	}
	s.mu.Unlock()

	if err != nil {
		go func() {
			defer close(sub.done)
			if onError != nil && ctx.Err() == nil {
				onError(fmt.Errorf("failed to listen for changes: %w", err))
			}
		}()
	} else {
		sub.wake()
		go s.run(sub, onSnapshot, onError)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-sub.done
			s.remove(key, sub)
		})
	}
}

func (s *Store) run(sub *subscription, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) {
	defer close(sub.done)
	defer s.remove(documentPath(sub.namespace, sub.id), sub)

	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.closing:
			if onError != nil && sub.ctx.Err() == nil {
				onError(docstore.ErrClosed)
			}
			return
		case <-sub.kick:
		}

		order, err := s.Get(sub.ctx, sub.namespace, sub.id)
		if sub.ctx.Err() != nil {
			return
		}
		switch {
		case errors.Is(err, models.ErrNotFound):
			onSnapshot(nil, false)
		case err != nil:
			if onError != nil {
				onError(err)
			}
			return
		default:
			onSnapshot(order, true)
		}
	}
}

func (s *Store) remove(key string, sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.subs[key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, key)
		}
	}
}

// ensureListenerLocked starts the shared LISTEN connection on first use
func (s *Store) ensureListenerLocked() error {
	if s.closed {
		return errors.New("store is closed")
	}
	if s.listener != nil {
		return nil
	}
	if s.databaseURL == "" {
		return errListenerUnavailable
	}

	listener := pq.NewListener(s.databaseURL, time.Second, time.Minute, s.onListenerEvent)
	if err := listener.Listen(changesChannel); err != nil {
		listener.Close()
		return err
	}

	s.listener = listener
	go s.dispatch(listener)
	return nil
}

func (s *Store) onListenerEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventDisconnected:
		s.logger.Warn("Change listener disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		s.logger.Info("Change listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		s.logger.Error("Change listener connection attempt failed", zap.Error(err))
	}
}

// dispatch fans notifications out to subscribers until the listener closes.
// A nil notification follows a reconnect and means some may have been lost.
func (s *Store) dispatch(listener *pq.Listener) {
	for n := range listener.Notify {
		if n == nil {
			s.wakeAll()
			continue
		}
		s.wakeKey(n.Extra)
	}
}

func (s *Store) wakeKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs[key] {
		sub.wake()
	}
}

// closeSubscriptionsLocked ends every subscription with docstore.ErrClosed
func (s *Store) closeSubscriptionsLocked() {
	for key, set := range s.subs {
		for sub := range set {
			close(sub.closing)
		}
		delete(s.subs, key)
	}
}

func (s *Store) wakeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, set := range s.subs {
		for sub := range set {
			sub.wake()
		}
	}
}

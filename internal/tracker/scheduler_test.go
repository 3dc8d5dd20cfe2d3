package tracker

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler is a Scheduler whose clock only moves when Advance is called.
// Due calls run synchronously inside Advance, in deadline order.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{s: m, at: m.now + d, seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, running every call that falls due
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		next.fired = true
		m.now = next.at
		m.mu.Unlock()

		next.f()
	}
}

// Now returns the elapsed manual time
func (m *ManualScheduler) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the deadlines of calls not yet run or stopped
func (m *ManualScheduler) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []time.Duration
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			due = append(due, t.at)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	return due
}

func (m *ManualScheduler) nextDueLocked(target time.Duration) *manualTimer {
	var next *manualTimer
	for _, t := range m.timers {
		if t.stopped || t.fired || t.at > target {
			continue
		}
		if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

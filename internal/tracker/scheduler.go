package tracker

import "time"

// Timer is a pending deferred call
type Timer interface {
	// Stop prevents the call from running. It reports false if the call
	// already ran or was already stopped.
	Stop() bool
}

// Scheduler arms deferred calls
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules on the runtime timer
type RealScheduler struct{}

// AfterFunc calls f in its own goroutine after d
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

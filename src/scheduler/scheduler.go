// Package scheduler abstracts one-shot timers so that timer-driven state
// can be tested without wall-clock delays.
package scheduler

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped the
	// timer; stopping an expired or stopped timer returns false.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// System schedules on the Go runtime timers.
type System struct{}

// AfterFunc implements Scheduler.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

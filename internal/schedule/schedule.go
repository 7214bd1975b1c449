// Package schedule provides cancellable scheduled callbacks for the
// single-threaded onboarding core.
//
// Two implementations share the Scheduler interface:
//   - Loop runs every posted function and timer callback on one goroutine, so
//     pointer events and timer ticks are totally ordered.
//   - Manual is a virtual clock that runs callbacks on the caller's goroutine as
//     time is advanced. Tests and scripted replays use it.
package schedule

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call prevented the
	// callback from running. A stopped callback never runs.
	Stop() bool
}

// Scheduler schedules callbacks to run after a delay.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
	Now() time.Time
}

// StopAll stops every non-nil timer.
func StopAll(timers ...Timer) {
	for _, t := range timers {
		if t != nil {
			t.Stop()
		}
	}
}

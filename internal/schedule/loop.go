package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrLoopClosed is returned when work is submitted to a stopped Loop.
var ErrLoopClosed = errors.New("event loop closed")

// Loop serializes posted functions and timer callbacks onto a single
// goroutine started by Run. It is safe to Post from any goroutine.
type Loop struct {
	work    chan func()
	done    chan struct{}
	once    sync.Once
	running atomic.Bool
}

// NewLoop creates a Loop with a buffered work queue of the given size.
func NewLoop(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Loop{
		work: make(chan func(), queueSize),
		done: make(chan struct{}),
	}
}

// Run processes work until ctx is cancelled or Close is called.
// It blocks and must be called exactly once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("event loop already running")
	}
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.work:
			fn()
		}
	}
}

// Close stops the loop. Pending work is dropped.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
}

// Post enqueues fn. It reports false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.work <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	}
}

type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *loopTimer) Stop() bool {
	if t.fired.Load() {
		return false
	}
	if !t.stopped.CompareAndSwap(false, true) {
		return false
	}
	t.t.Stop()
	return true
}

// After schedules fn to run on the loop after d. A timer stopped from the
// loop goroutine never runs, even if its wakeup was already queued.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped.Load() {
				return
			}
			lt.fired.Store(true)
			fn()
		})
	})
	return lt
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time { return time.Now() }

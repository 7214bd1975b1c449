// Package verifier implements sigil authentication: classifying a continuous
// pointer gesture against an ordered anchor path under a spatial tolerance
// and a time budget, and driving the autonomous retry cycle.
//
// A Verifier is single-threaded. All calls, including the scheduler's
// callbacks, must come from one goroutine (see schedule.Loop).
//
// Lifecycle:
//
//	Idle → Materializing → AwaitingStart → Tracing → Success → Idle
//	                                              ↘ Failed → Resetting → Materializing
//
// Materializing ends when the presentation layer calls
// NotifyMaterializationComplete. Failed and Success are held for cosmetic
// durations on the scheduler; every scheduled callback is tied to the attempt
// that created it and is cancelled when that attempt is discarded.
package verifier

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nvandessel/sigilgate/internal/geometry"
	"github.com/nvandessel/sigilgate/internal/schedule"
	"github.com/nvandessel/sigilgate/internal/sigil"
)

// ErrNoScheduler is returned by New when no scheduler is supplied.
var ErrNoScheduler = errors.New("verifier: nil scheduler")

// attempt is the transient TraceAttempt.
type attempt struct {
	number          int
	cursor          int
	awaitingRelease bool
	completed       []bool
	completedCount  int
	remaining       time.Duration
}

func newAttempt(number, edges int, budget time.Duration) *attempt {
	return &attempt{
		number:    number,
		completed: make([]bool, edges),
		remaining: budget,
	}
}

func (a *attempt) complete(i int) {
	if !a.completed[i] {
		a.completed[i] = true
		a.completedCount++
	}
}

func (a *attempt) allComplete() bool {
	return a.completedCount == len(a.completed)
}

// Snapshot is a read-only view of the verifier for presentation.
type Snapshot struct {
	State           State         `json:"state"`
	Attempt         int           `json:"attempt"`
	CursorIndex     int           `json:"cursor_index"`
	AwaitingRelease bool          `json:"awaiting_release"`
	CompletedEdges  []int         `json:"completed_edges"`
	RemainingTimeMs int64         `json:"remaining_time_ms"`
	RetryCount      int           `json:"retry_count"`
	LastFailure     FailureReason `json:"last_failure,omitempty"`
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger for transition diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// Verifier is the PathTraceVerifier.
type Verifier struct {
	graph  *sigil.Graph
	cfg    Config
	sched  schedule.Scheduler
	hooks  Hooks
	logger *slog.Logger

	state       State
	attempt     *attempt
	attempts    int
	retries     int
	lastFailure FailureReason

	// generation invalidates callbacks scheduled for a discarded attempt.
	generation uint64
	tick       schedule.Timer
	tickStep   time.Duration
	hold       schedule.Timer

	pending     []func()
	dispatching bool
}

// New validates cfg and returns an Idle verifier for graph.
func New(graph *sigil.Graph, cfg Config, sched schedule.Scheduler, hooks Hooks, opts ...Option) (*Verifier, error) {
	if graph == nil {
		return nil, sigil.Errorf(sigil.ErrTooFewAnchors, "nil graph")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, ErrNoScheduler
	}

	v := &Verifier{
		graph:  graph,
		cfg:    cfg.withDefaults(),
		sched:  sched,
		hooks:  hooks,
		logger: slog.New(slog.DiscardHandler),
		state:  Idle,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// State returns the current state.
func (v *Verifier) State() State { return v.state }

// RetryCount returns the number of failed attempts since construction.
func (v *Verifier) RetryCount() int { return v.retries }

// Graph returns the sigil being traced.
func (v *Verifier) Graph() *sigil.Graph { return v.graph }

// Config returns the effective tracing rules.
func (v *Verifier) Config() Config { return v.cfg }

// Snapshot returns a copy of the current attempt's progress.
func (v *Verifier) Snapshot() Snapshot {
	s := Snapshot{
		State:          v.state,
		RetryCount:     v.retries,
		LastFailure:    v.lastFailure,
		CompletedEdges: []int{},
	}
	a := v.attempt
	if a == nil {
		return s
	}
	s.Attempt = a.number
	s.CursorIndex = a.cursor
	if a.awaitingRelease {
		s.AwaitingRelease = true
		s.CursorIndex = len(a.completed)
	}
	for i, done := range a.completed {
		if done {
			s.CompletedEdges = append(s.CompletedEdges, i)
		}
	}
	s.RemainingTimeMs = a.remaining.Milliseconds()
	return s
}

// Activate starts a fresh attempt. Only valid from Idle.
func (v *Verifier) Activate() {
	defer v.flush()
	if v.state != Idle {
		v.ignored("activate")
		return
	}
	v.cancelScheduled()
	v.beginAttempt()
}

// NotifyMaterializationComplete is called by the presentation layer once its
// entry animation has finished. It opens the attempt for input and starts
// the countdown.
func (v *Verifier) NotifyMaterializationComplete() {
	defer v.flush()
	if v.state != Materializing {
		v.ignored("materialized")
		return
	}
	v.transition(AwaitingStart)
	v.scheduleTick()
}

// PointerDown starts tracing when p is within the capture radius of the
// entry anchor.
func (v *Verifier) PointerDown(p geometry.Point) {
	defer v.flush()
	if v.state != AwaitingStart {
		v.ignored("pointer-down")
		return
	}
	if !geometry.Within(p, v.graph.Entry().Pos, v.cfg.CaptureRadius) {
		v.logger.Debug("pointer down away from entry", "x", p.X, "y", p.Y)
		return
	}
	v.attempt.cursor = 0
	v.transition(Tracing)
}

// PointerMove scores p against the edge being traced. A non-finite p is a
// deviation.
func (v *Verifier) PointerMove(p geometry.Point) {
	defer v.flush()
	if v.state != Tracing {
		return
	}
	a := v.attempt

	from, to := v.graph.Segment(a.cursor)
	if !p.Finite() || geometry.SegmentDistance(p, from, to) > v.cfg.Tolerance {
		v.fail(ReasonPathDeviation)
		return
	}
	if a.awaitingRelease || !geometry.Within(p, to, v.cfg.CaptureRadius) {
		return
	}

	a.complete(a.cursor)
	if a.cursor+1 < len(a.completed) {
		a.cursor++
		v.logger.Debug("edge traced", "edge", a.cursor-1, "attempt", a.number)
		return
	}
	// Last edge reached; the gesture must still be released on the exit.
	a.awaitingRelease = true
	v.logger.Debug("awaiting release", "attempt", a.number)
}

// PointerUp ends the gesture. It succeeds only when every edge has been
// traced and p is within the capture radius of the exit anchor.
func (v *Verifier) PointerUp(p geometry.Point) {
	defer v.flush()
	if v.state != Tracing {
		v.ignored("pointer-up")
		return
	}
	if v.attempt.allComplete() && geometry.Within(p, v.graph.Exit().Pos, v.cfg.CaptureRadius) {
		v.succeed()
		return
	}
	v.fail(ReasonIncompleteRelease)
}

// PointerLeave abandons the gesture.
func (v *Verifier) PointerLeave() {
	defer v.flush()
	if v.state != Tracing {
		v.ignored("pointer-leave")
		return
	}
	v.fail(ReasonPathDeviation)
}

// Deactivate cancels every pending callback, discards the attempt and
// returns to Idle. Safe from any state.
func (v *Verifier) Deactivate() {
	defer v.flush()
	v.cancelScheduled()
	v.generation++
	v.attempt = nil
	if v.state != Idle {
		v.transition(Idle)
	}
}

func (v *Verifier) beginAttempt() {
	v.generation++
	v.attempts++
	v.attempt = newAttempt(v.attempts, v.graph.NumEdges(), v.cfg.TimeBudget)
	v.transition(Materializing)
}

func (v *Verifier) scheduleTick() {
	step := v.cfg.TickInterval
	if rem := v.attempt.remaining; rem < step {
		step = rem
	}
	v.tickStep = step
	v.tick = v.after(step, v.onTimerTick)
}

func (v *Verifier) onTimerTick() {
	v.tick = nil
	if !v.state.acceptsPointer() {
		return
	}
	a := v.attempt
	a.remaining -= v.tickStep
	if a.remaining < 0 {
		a.remaining = 0
	}
	remainingMs := a.remaining.Milliseconds()
	v.emit(func() {
		if v.hooks.OnTick != nil {
			v.hooks.OnTick(remainingMs)
		}
	})
	if a.remaining == 0 {
		v.fail(ReasonTimeout)
		return
	}
	v.scheduleTick()
}

func (v *Verifier) fail(reason FailureReason) {
	if !v.state.acceptsPointer() {
		return
	}
	v.stopTick()
	v.retries++
	v.lastFailure = reason
	v.transition(Failed)
	v.logger.Info("sigil attempt failed", "reason", string(reason), "attempt", v.attempt.number, "retries", v.retries)
	v.emit(func() {
		if v.hooks.OnFailed != nil {
			v.hooks.OnFailed(reason)
		}
	})
	v.hold = v.after(v.cfg.FailHold, v.reset)
}

func (v *Verifier) reset() {
	v.hold = nil
	if v.state != Failed {
		return
	}
	v.transition(Resetting)
	v.beginAttempt()
}

func (v *Verifier) succeed() {
	v.stopTick()
	v.transition(Success)
	v.logger.Info("sigil traced", "attempt", v.attempt.number, "retries", v.retries)
	v.hold = v.after(v.cfg.SuccessHold, v.finish)
}

func (v *Verifier) finish() {
	v.hold = nil
	if v.state != Success {
		return
	}
	v.generation++
	v.attempt = nil
	v.emit(func() {
		if v.hooks.OnSuccess != nil {
			v.hooks.OnSuccess()
		}
	})
	v.transition(Idle)
}

func (v *Verifier) transition(to State) {
	from := v.state
	v.state = to
	v.logger.Debug("sigil transition", "from", from.String(), "to", to.String())
	v.emit(func() {
		if v.hooks.OnStateChanged != nil {
			v.hooks.OnStateChanged(to)
		}
	})
}

// after schedules fn for the current generation. A callback whose
// generation has been superseded is dropped.
func (v *Verifier) after(d time.Duration, fn func()) schedule.Timer {
	gen := v.generation
	return v.sched.After(d, func() {
		if v.generation != gen {
			return
		}
		fn()
		v.flush()
	})
}

func (v *Verifier) stopTick() {
	schedule.StopAll(v.tick)
	v.tick = nil
}

func (v *Verifier) cancelScheduled() {
	schedule.StopAll(v.tick, v.hold)
	v.tick = nil
	v.hold = nil
}

func (v *Verifier) ignored(op string) {
	v.logger.Debug("ignored in state", "op", op, "state", v.state.String())
}

// emit queues a hook call for delivery once the current transition is done.
func (v *Verifier) emit(fn func()) {
	v.pending = append(v.pending, fn)
}

// flush delivers queued hooks in order. Hooks that re-enter the verifier
// append to the same queue; only the outermost flush drains it.
func (v *Verifier) flush() {
	if v.dispatching {
		return
	}
	v.dispatching = true
	defer func() { v.dispatching = false }()

	for len(v.pending) > 0 {
		fn := v.pending[0]
		v.pending = v.pending[1:]
		fn()
	}
}

package simulation

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nvandessel/sigilgate/internal/schedule"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/verifier"
)

// Outcome is how a replay ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeNone    Outcome = "none"
)

func (o Outcome) valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailed || o == OutcomeNone
}

// Event is one hook delivered by the verifier during a replay.
type Event struct {
	AtMs        int64                  `json:"at_ms"`
	Kind        string                 `json:"kind"` // state, tick, failed, success
	State       string                 `json:"state,omitempty"`
	Reason      verifier.FailureReason `json:"reason,omitempty"`
	RemainingMs int64                  `json:"remaining_ms,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case "state":
		return fmt.Sprintf("%6dms  state    %s", e.AtMs, e.State)
	case "tick":
		return fmt.Sprintf("%6dms  tick     %dms left", e.AtMs, e.RemainingMs)
	case "failed":
		return fmt.Sprintf("%6dms  failed   %s", e.AtMs, e.Reason)
	default:
		return fmt.Sprintf("%6dms  %s", e.AtMs, e.Kind)
	}
}

// Result is the record of one replay.
type Result struct {
	Name     string                 `json:"name"`
	Events   []Event                `json:"events"`
	Outcome  Outcome                `json:"outcome"`
	Reason   verifier.FailureReason `json:"reason,omitempty"`
	Retries  int                    `json:"retries"`
	Final    verifier.Snapshot      `json:"final"`
	Failures []string               `json:"expectation_failures,omitempty"`
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// States returns the state names entered, in order.
func (r *Result) States() []string {
	var out []string
	for _, e := range r.Events {
		if e.Kind == "state" {
			out = append(out, e.State)
		}
	}
	return out
}

// Count returns how many events of kind were delivered.
func (r *Result) Count(kind string) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger passes l to the verifier under replay.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithAutoMaterialize completes materialization as soon as an attempt
// enters Materializing, unless the scenario scripts its own notices.
func WithAutoMaterialize(on bool) Option {
	return func(r *Runner) { r.autoMaterialize = on }
}

// Runner replays scenarios against fresh verifiers.
type Runner struct {
	cfg             verifier.Config
	graph           *sigil.Graph
	logger          *slog.Logger
	autoMaterialize bool
}

// NewRunner returns a runner that uses cfg and graph unless a scenario
// overrides them. Auto-materialization is on by default.
func NewRunner(cfg verifier.Config, graph *sigil.Graph, opts ...Option) (*Runner, error) {
	if graph == nil {
		return nil, fmt.Errorf("simulation: nil graph")
	}
	r := &Runner{
		cfg:             cfg,
		graph:           graph,
		logger:          slog.New(slog.DiscardHandler),
		autoMaterialize: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

var epoch = time.Unix(0, 0)

// Run replays sc on a virtual clock and checks its expectation.
func (r *Runner) Run(sc Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	graph, err := sc.Graph()
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	if graph == nil {
		graph = r.graph
	}
	cfg := sc.Config.Apply(r.cfg)

	clock := schedule.NewManual(epoch)
	res := &Result{Name: sc.Name, Outcome: OutcomeNone}
	elapsed := func() int64 { return clock.Now().Sub(epoch).Milliseconds() }

	auto := r.autoMaterialize && !slices.ContainsFunc(sc.Steps, func(s Step) bool {
		return s.Action == ActionMaterialized
	})

	var (
		v      *verifier.Verifier
		closed bool
	)
	record := func(e Event) {
		if !closed {
			res.Events = append(res.Events, e)
		}
	}
	hooks := verifier.Hooks{
		OnStateChanged: func(s verifier.State) {
			record(Event{AtMs: elapsed(), Kind: "state", State: s.String()})
			if auto && s == verifier.Materializing {
				v.NotifyMaterializationComplete()
			}
		},
		OnTick: func(ms int64) {
			record(Event{AtMs: elapsed(), Kind: "tick", RemainingMs: ms})
		},
		OnFailed: func(reason verifier.FailureReason) {
			record(Event{AtMs: elapsed(), Kind: "failed", Reason: reason})
			res.Outcome = OutcomeFailed
			res.Reason = reason
		},
		OnSuccess: func() {
			record(Event{AtMs: elapsed(), Kind: "success"})
			res.Outcome = OutcomeSuccess
			res.Reason = ""
		},
	}
	v, err = verifier.New(graph, cfg, clock, hooks, verifier.WithLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}

	v.Activate()
	for _, st := range sc.Steps {
		clock.AdvanceTo(epoch.Add(time.Duration(st.At) * time.Millisecond))
		switch st.Action {
		case ActionDown:
			v.PointerDown(st.Point())
		case ActionMove:
			v.PointerMove(st.Point())
		case ActionUp:
			v.PointerUp(st.Point())
		case ActionLeave:
			v.PointerLeave()
		case ActionMaterialized:
			v.NotifyMaterializationComplete()
		case ActionWait:
		}
	}
	// A success is only reported once its hold has elapsed.
	if v.State() == verifier.Success {
		clock.Advance(cfg.SuccessHold)
	}

	res.Retries = v.RetryCount()
	res.Final = v.Snapshot()
	closed = true
	v.Deactivate()
	res.Failures = sc.Expect.check(res)
	r.logger.Debug("scenario replayed", "name", sc.Name, "outcome", string(res.Outcome), "retries", res.Retries)
	return res, nil
}

func (e *Expect) check(res *Result) []string {
	if e == nil {
		return nil
	}
	var failures []string
	if e.Outcome != "" && res.Outcome != e.Outcome {
		failures = append(failures, fmt.Sprintf("outcome = %s, want %s", res.Outcome, e.Outcome))
	}
	if e.Reason != "" && res.Reason != e.Reason {
		failures = append(failures, fmt.Sprintf("reason = %q, want %q", res.Reason, e.Reason))
	}
	if e.Retries != nil && res.Retries != *e.Retries {
		failures = append(failures, fmt.Sprintf("retries = %d, want %d", res.Retries, *e.Retries))
	}
	return failures
}

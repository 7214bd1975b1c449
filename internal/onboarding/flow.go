// Package onboarding wires the sigil verifier, the stage sequencer and the
// two reference gates into a single onboarding session.
//
// A Flow owns no goroutines. Like its parts it must be driven from a single
// goroutine, normally a schedule.Loop.
package onboarding

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/gate"
	"github.com/nvandessel/sigilgate/internal/geometry"
	"github.com/nvandessel/sigilgate/internal/logging"
	"github.com/nvandessel/sigilgate/internal/schedule"
	"github.com/nvandessel/sigilgate/internal/sequencer"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/verifier"
)

// Config bundles the configuration of every part of the flow.
type Config struct {
	Verifier          verifier.Config
	Sequencer         sequencer.Config
	Upload            gate.UploadConfig
	SelectionOptions  []string
	SelectionRequired int
}

// DefaultConfig returns the default onboarding.
func DefaultConfig() Config {
	return Config{
		Verifier:          verifier.DefaultConfig(),
		Sequencer:         sequencer.DefaultConfig(),
		Upload:            gate.DefaultUploadConfig(),
		SelectionOptions:  slices.Clone(constants.DefaultSelectionOptions),
		SelectionRequired: constants.DefaultSelectionRequired,
	}
}

// Hooks are the presentation-facing notifications of the whole flow.
type Hooks struct {
	Verifier  verifier.Hooks
	Sequencer sequencer.Hooks
	Upload    gate.UploadHooks
	Selection gate.SelectionHooks
}

// Option configures a Flow.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	transitions *logging.TransitionLogger
	sessionID   string
}

// WithLogger sets the logger shared by every part of the flow.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTransitionLogger records verifier and stage transitions to tl.
func WithTransitionLogger(tl *logging.TransitionLogger) Option {
	return func(o *options) { o.transitions = tl }
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.sessionID = id
		}
	}
}

// Flow is one onboarding session.
type Flow struct {
	id          string
	verifier    *verifier.Verifier
	seq         *sequencer.Sequencer
	upload      *gate.UploadGate
	selection   *gate.SelectionGate
	logger      *slog.Logger
	transitions *logging.TransitionLogger

	verifierState verifier.State
	closed        bool
}

// Snapshot is a read-only view of a whole session.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Stage     sequencer.Stage   `json:"stage"`
	Completed []sequencer.Stage `json:"completed"`
	Progress  int               `json:"progress"`
	Verifier  verifier.Snapshot `json:"verifier"`
	Upload    UploadSnapshot    `json:"upload"`
	Selection SelectionSnapshot `json:"selection"`
	Closed    bool              `json:"closed,omitempty"`
}

// UploadSnapshot describes the upload gate.
type UploadSnapshot struct {
	Running   bool `json:"running"`
	Percent   int  `json:"percent"`
	Completed bool `json:"completed"`
}

// SelectionSnapshot describes the selection gate.
type SelectionSnapshot struct {
	Options   []string `json:"options"`
	Selected  []string `json:"selected"`
	Required  int      `json:"required"`
	Completed bool     `json:"completed"`
}

// NewFlow builds a session for graph. The sequencer starts on its first
// stage; call Start to activate the verifier.
func NewFlow(graph *sigil.Graph, cfg Config, sched schedule.Scheduler, hooks Hooks, opts ...Option) (*Flow, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}

	f := &Flow{
		id:            o.sessionID,
		logger:        o.logger.With("session", o.sessionID),
		transitions:   o.transitions,
		verifierState: verifier.Idle,
	}

	var err error
	f.verifier, err = verifier.New(graph, cfg.Verifier, sched,
		verifier.Chain(hooks.Verifier, verifier.Hooks{
			OnStateChanged: f.onVerifierState,
			OnFailed:       f.onVerifierFailed,
			OnSuccess:      f.onVerified,
		}),
		verifier.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("building verifier: %w", err)
	}

	f.seq, err = sequencer.New(cfg.Sequencer,
		sequencer.Chain(hooks.Sequencer, sequencer.Hooks{
			OnStageChanged: f.onStageChanged,
		}),
		sequencer.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("building sequencer: %w", err)
	}

	upload := hooks.Upload
	f.upload, err = gate.NewUpload(cfg.Upload, sched, gate.UploadHooks{
		OnProgress: upload.OnProgress,
		OnComplete: func() {
			if upload.OnComplete != nil {
				upload.OnComplete()
			}
			f.seq.MarkComplete(sequencer.GateA)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("building upload gate: %w", err)
	}

	selection := hooks.Selection
	f.selection, err = gate.NewSelection(cfg.SelectionOptions, cfg.SelectionRequired, gate.SelectionHooks{
		OnSelectionChanged: selection.OnSelectionChanged,
		OnComplete: func() {
			if selection.OnComplete != nil {
				selection.OnComplete()
			}
			f.seq.MarkComplete(sequencer.GateB)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("building selection gate: %w", err)
	}

	return f, nil
}

// ID returns the session ID.
func (f *Flow) ID() string { return f.id }

// Graph returns the sigil being verified.
func (f *Flow) Graph() *sigil.Graph { return f.verifier.Graph() }

// Start activates the verifier when the session is on the Verification stage.
func (f *Flow) Start() {
	if f.closed {
		return
	}
	if f.seq.Current() == sequencer.Verification {
		f.verifier.Activate()
	}
}

// MaterializationComplete forwards the presentation layer's signal that the
// sigil is on screen.
func (f *Flow) MaterializationComplete() {
	if f.closed {
		return
	}
	f.verifier.NotifyMaterializationComplete()
}

// PointerDown forwards a pointer press.
func (f *Flow) PointerDown(p geometry.Point) {
	if !f.closed {
		f.verifier.PointerDown(p)
	}
}

// PointerMove forwards a pointer move.
func (f *Flow) PointerMove(p geometry.Point) {
	if !f.closed {
		f.verifier.PointerMove(p)
	}
}

// PointerUp forwards a pointer release.
func (f *Flow) PointerUp(p geometry.Point) {
	if !f.closed {
		f.verifier.PointerUp(p)
	}
}

// PointerLeave forwards the pointer leaving the tracing surface.
func (f *Flow) PointerLeave() {
	if !f.closed {
		f.verifier.PointerLeave()
	}
}

// StartUpload starts the simulated upload gate.
func (f *Flow) StartUpload() {
	if !f.closed {
		f.upload.Start()
	}
}

// CancelUpload stops the simulated upload gate.
func (f *Flow) CancelUpload() { f.upload.Cancel() }

// ToggleSelection flips one option of the selection gate.
func (f *Flow) ToggleSelection(id string) bool {
	if f.closed {
		return false
	}
	return f.selection.Toggle(id)
}

// ConfirmSelection confirms the selection gate.
func (f *Flow) ConfirmSelection() bool {
	if f.closed {
		return false
	}
	return f.selection.Confirm()
}

// MarkComplete records an externally completed stage.
func (f *Flow) MarkComplete(stage sequencer.Stage) {
	if !f.closed {
		f.seq.MarkComplete(stage)
	}
}

// JumpTo navigates to stage and reports whether the sequencer accepted it.
func (f *Flow) JumpTo(stage sequencer.Stage) bool {
	if f.closed {
		return false
	}
	return f.seq.JumpTo(stage)
}

// CanJumpTo reports whether stage is a navigation target.
func (f *Flow) CanJumpTo(stage sequencer.Stage) bool { return f.seq.CanJumpTo(stage) }

// Stage returns the current stage.
func (f *Flow) Stage() sequencer.Stage { return f.seq.Current() }

// VerifierState returns the verifier's state.
func (f *Flow) VerifierState() verifier.State { return f.verifier.State() }

// Snapshot returns a copy of the whole session.
func (f *Flow) Snapshot() Snapshot {
	return Snapshot{
		SessionID: f.id,
		Stage:     f.seq.Current(),
		Completed: f.seq.Completed(),
		Progress:  f.seq.ProgressPercent(),
		Verifier:  f.verifier.Snapshot(),
		Upload: UploadSnapshot{
			Running:   f.upload.Running(),
			Percent:   f.upload.Percent(),
			Completed: f.upload.Completed(),
		},
		Selection: SelectionSnapshot{
			Options:   f.selection.Options(),
			Selected:  f.selection.Selected(),
			Required:  f.selection.Required(),
			Completed: f.selection.Completed(),
		},
		Closed: f.closed,
	}
}

// Close deactivates the verifier and cancels the upload. Every later inbound
// call is ignored.
func (f *Flow) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.verifier.Deactivate()
	f.upload.Cancel()
	f.logger.Debug("onboarding session closed")
}

func (f *Flow) onVerifierState(s verifier.State) {
	from := f.verifierState
	f.verifierState = s
	f.transitions.Record(logging.Transition{
		Session: f.id,
		Kind:    "verifier",
		From:    from.String(),
		To:      s.String(),
	})
}

func (f *Flow) onVerifierFailed(reason verifier.FailureReason) {
	f.transitions.Record(logging.Transition{
		Session: f.id,
		Kind:    "failure",
		To:      string(reason),
		Fields:  map[string]any{"retries": f.verifier.RetryCount()},
	})
}

func (f *Flow) onVerified() {
	f.seq.MarkComplete(sequencer.Verification)
}

func (f *Flow) onStageChanged(stage sequencer.Stage) {
	f.transitions.Record(logging.Transition{
		Session: f.id,
		Kind:    "stage",
		To:      string(stage),
		Fields:  map[string]any{"progress": f.seq.ProgressPercent()},
	})
	if stage == sequencer.Verification {
		if !f.closed && f.verifier.State() == verifier.Idle {
			f.verifier.Activate()
		}
		return
	}
	if f.verifier.State() != verifier.Idle {
		f.verifier.Deactivate()
	}
}

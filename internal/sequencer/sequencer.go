// Package sequencer orders the onboarding stages: sigil verification followed
// by two independent completion gates, ending in Finished. It tracks which
// stages have completed and lets the user rewind to any completed stage.
//
// Completion is monotonic: once a stage is completed it stays completed for
// the life of the Sequencer.
package sequencer

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/nvandessel/sigilgate/internal/constants"
)

// Stage is one named phase of onboarding.
type Stage string

const (
	Verification Stage = "verification"
	GateA        Stage = "gate-a"
	GateB        Stage = "gate-b"
	Finished     Stage = "finished"
)

// DefaultStages is the standard progression order.
var DefaultStages = []Stage{Verification, GateA, GateB}

// Config defines the stage order and progress weighting.
type Config struct {
	// Stages is the forward progression order. Finished is implicit.
	Stages []Stage

	// Progress[i] is the percentage reported once Stages[i] is the highest
	// completed stage. Must be non-decreasing.
	Progress []int

	// TrustExternalJumps lets JumpTo reach stages beyond the frontier,
	// back-filling every earlier stage as completed.
	TrustExternalJumps bool
}

// DefaultConfig returns the standard three-stage onboarding.
func DefaultConfig() Config {
	return Config{
		Stages:             slices.Clone(DefaultStages),
		Progress:           slices.Clone(constants.DefaultProgressTable),
		TrustExternalJumps: true,
	}
}

// Validate checks the stage list and progress table.
func (c Config) Validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("sequencer needs at least one stage")
	}
	if len(c.Progress) != len(c.Stages) {
		return fmt.Errorf("progress table has %d entries for %d stages", len(c.Progress), len(c.Stages))
	}
	seen := make(map[Stage]bool, len(c.Stages))
	for _, s := range c.Stages {
		if s == "" || s == Finished {
			return fmt.Errorf("invalid stage %q in sequence", s)
		}
		if seen[s] {
			return fmt.Errorf("duplicate stage %q", s)
		}
		seen[s] = true
	}
	prev := 0
	for i, p := range c.Progress {
		if p < prev || p > 100 {
			return fmt.Errorf("progress[%d] = %d must be non-decreasing and within [0,100]", i, p)
		}
		prev = p
	}
	return nil
}

// Hooks are the sequencer's outbound notifications. Nil fields are skipped.
type Hooks struct {
	OnStageChanged    func(Stage)
	OnProgressChanged func(percent int)
}

// Chain returns Hooks that call each of hs in order.
func Chain(hs ...Hooks) Hooks {
	return Hooks{
		OnStageChanged: func(s Stage) {
			for _, h := range hs {
				if h.OnStageChanged != nil {
					h.OnStageChanged(s)
				}
			}
		},
		OnProgressChanged: func(p int) {
			for _, h := range hs {
				if h.OnProgressChanged != nil {
					h.OnProgressChanged(p)
				}
			}
		},
	}
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger for stage diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sequencer is the StageSequencer. Not safe for concurrent use.
type Sequencer struct {
	cfg       Config
	index     map[Stage]int
	completed []bool
	current   Stage
	progress  int
	hooks     Hooks
	logger    *slog.Logger
}

// New returns a Sequencer positioned at the first stage.
func New(cfg Config, hooks Hooks, opts ...Option) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Sequencer{
		cfg: Config{
			Stages:             slices.Clone(cfg.Stages),
			Progress:           slices.Clone(cfg.Progress),
			TrustExternalJumps: cfg.TrustExternalJumps,
		},
		index:     make(map[Stage]int, len(cfg.Stages)),
		completed: make([]bool, len(cfg.Stages)),
		current:   cfg.Stages[0],
		hooks:     hooks,
		logger:    slog.New(slog.DiscardHandler),
	}
	for i, st := range cfg.Stages {
		s.index[st] = i
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Stages returns the progression order.
func (s *Sequencer) Stages() []Stage { return slices.Clone(s.cfg.Stages) }

// Current returns the stage the user is on.
func (s *Sequencer) Current() Stage { return s.current }

// IsCompleted reports whether stage has completed.
func (s *Sequencer) IsCompleted(stage Stage) bool {
	i, ok := s.index[stage]
	return ok && s.completed[i]
}

// Completed returns the completed stages in progression order.
func (s *Sequencer) Completed() []Stage {
	out := make([]Stage, 0, len(s.completed))
	for i, done := range s.completed {
		if done {
			out = append(out, s.cfg.Stages[i])
		}
	}
	return out
}

// Done reports whether the sequence has reached Finished.
func (s *Sequencer) Done() bool { return s.current == Finished }

// ProgressPercent returns the lookup-table progress for the highest
// completed stage, or 0 when nothing has completed.
func (s *Sequencer) ProgressPercent() int { return s.progress }

// MarkComplete records stage as completed. When stage is the current stage
// the sequencer advances to the next stage, or Finished after the last one.
// Repeated calls are no-ops; unknown stages are ignored.
func (s *Sequencer) MarkComplete(stage Stage) {
	i, ok := s.index[stage]
	if !ok {
		s.logger.Debug("ignored completion for unknown stage", "stage", string(stage))
		return
	}
	s.completed[i] = true
	s.updateProgress()

	if stage == s.current {
		s.setCurrent(s.next(i))
	}
}

// CanJumpTo reports whether stage is reachable by navigation: a completed
// stage, the first stage, or the immediate successor of a completed stage.
func (s *Sequencer) CanJumpTo(stage Stage) bool {
	if stage == Finished {
		return s.completed[len(s.completed)-1]
	}
	i, ok := s.index[stage]
	if !ok {
		return false
	}
	return s.completed[i] || i == 0 || s.completed[i-1]
}

// JumpTo moves to stage. Navigation targets (see CanJumpTo) are always
// allowed; with TrustExternalJumps any known stage is. Every successful jump
// back-fills the stages before the target as completed. Disallowed jumps are
// no-ops. It reports whether the current stage changed or was confirmed.
func (s *Sequencer) JumpTo(stage Stage) bool {
	target, ok := s.position(stage)
	if !ok {
		return false
	}
	if !s.CanJumpTo(stage) && !s.cfg.TrustExternalJumps {
		s.logger.Debug("jump refused", "from", string(s.current), "to", string(stage))
		return false
	}

	for i := 0; i < target && i < len(s.completed); i++ {
		s.completed[i] = true
	}
	s.updateProgress()
	s.setCurrent(stage)
	return true
}

// position returns the order index of stage; Finished sits after the last stage.
func (s *Sequencer) position(stage Stage) (int, bool) {
	if stage == Finished {
		return len(s.cfg.Stages), true
	}
	i, ok := s.index[stage]
	return i, ok
}

func (s *Sequencer) next(i int) Stage {
	if i+1 < len(s.cfg.Stages) {
		return s.cfg.Stages[i+1]
	}
	return Finished
}

func (s *Sequencer) setCurrent(stage Stage) {
	if stage == s.current {
		return
	}
	s.logger.Debug("stage changed", "from", string(s.current), "to", string(stage))
	s.current = stage
	if s.hooks.OnStageChanged != nil {
		s.hooks.OnStageChanged(stage)
	}
}

func (s *Sequencer) updateProgress() {
	p := 0
	for i := len(s.completed) - 1; i >= 0; i-- {
		if s.completed[i] {
			p = s.cfg.Progress[i]
			break
		}
	}
	if p == s.progress {
		return
	}
	s.progress = p
	if s.hooks.OnProgressChanged != nil {
		s.hooks.OnProgressChanged(p)
	}
}

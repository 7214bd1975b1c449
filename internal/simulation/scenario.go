package simulation

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/sigilgate/internal/geometry"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/verifier"
)

// Action is a scripted input.
type Action string

const (
	ActionDown         Action = "down"
	ActionMove         Action = "move"
	ActionUp           Action = "up"
	ActionLeave        Action = "leave"
	ActionMaterialized Action = "materialized"
	ActionWait         Action = "wait"
)

func (a Action) valid() bool {
	switch a {
	case ActionDown, ActionMove, ActionUp, ActionLeave, ActionMaterialized, ActionWait:
		return true
	}
	return false
}

// Step is one scripted input at At milliseconds after activation.
type Step struct {
	At     int64   `yaml:"at" json:"at"`
	Action Action  `yaml:"action" json:"action"`
	X      float64 `yaml:"x,omitempty" json:"x,omitempty"`
	Y      float64 `yaml:"y,omitempty" json:"y,omitempty"`
}

// Point returns the step's pointer position.
func (s Step) Point() geometry.Point { return geometry.Pt(s.X, s.Y) }

// Overrides replaces selected verifier rules for one scenario.
type Overrides struct {
	Tolerance     *float64       `yaml:"tolerance,omitempty"`
	CaptureRadius *float64       `yaml:"capture_radius,omitempty"`
	TimeBudget    *time.Duration `yaml:"time_budget,omitempty"`
	TickInterval  *time.Duration `yaml:"tick_interval,omitempty"`
	FailHold      *time.Duration `yaml:"fail_hold,omitempty"`
	SuccessHold   *time.Duration `yaml:"success_hold,omitempty"`
}

// Apply returns base with the set fields replaced.
func (o *Overrides) Apply(base verifier.Config) verifier.Config {
	if o == nil {
		return base
	}
	if o.Tolerance != nil {
		base.Tolerance = *o.Tolerance
	}
	if o.CaptureRadius != nil {
		base.CaptureRadius = *o.CaptureRadius
	}
	if o.TimeBudget != nil {
		base.TimeBudget = *o.TimeBudget
	}
	if o.TickInterval != nil {
		base.TickInterval = *o.TickInterval
	}
	if o.FailHold != nil {
		base.FailHold = *o.FailHold
	}
	if o.SuccessHold != nil {
		base.SuccessHold = *o.SuccessHold
	}
	return base
}

// Expect is the outcome a scenario asserts.
type Expect struct {
	Outcome Outcome                `yaml:"outcome,omitempty"`
	Reason  verifier.FailureReason `yaml:"reason,omitempty"`
	Retries *int                   `yaml:"retries,omitempty"`
}

// Scenario is a scripted gesture.
type Scenario struct {
	Name    string         `yaml:"name"`
	Anchors []sigil.Anchor `yaml:"anchors,omitempty"`
	Edges   []sigil.Edge   `yaml:"edges,omitempty"`
	Config  *Overrides     `yaml:"config,omitempty"`
	Steps   []Step         `yaml:"steps"`
	Expect  *Expect        `yaml:"expect,omitempty"`
}

// Validate checks step ordering and actions.
func (s Scenario) Validate() error {
	var last int64
	for i, st := range s.Steps {
		if !st.Action.valid() {
			return fmt.Errorf("step %d: unknown action %q", i, st.Action)
		}
		if st.At < 0 {
			return fmt.Errorf("step %d: negative time %d", i, st.At)
		}
		if st.At < last {
			return fmt.Errorf("step %d: time %dms is before previous step at %dms", i, st.At, last)
		}
		last = st.At
	}
	if s.Expect != nil && s.Expect.Outcome != "" && !s.Expect.Outcome.valid() {
		return fmt.Errorf("expect: unknown outcome %q", s.Expect.Outcome)
	}
	return nil
}

// Graph builds the scenario's own anchor graph, or returns nil when it
// uses the runner's.
func (s Scenario) Graph() (*sigil.Graph, error) {
	switch {
	case len(s.Anchors) == 0:
		return nil, nil
	case len(s.Edges) == 0:
		return sigil.NewPath(s.Anchors)
	default:
		return sigil.NewGraph(s.Anchors, s.Edges)
	}
}

// ParseScenario decodes a YAML scenario.
func ParseScenario(data []byte) (Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	return s, nil
}

// LoadScenario reads and decodes a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// TraceSteps scripts an exact trace of g: pointer down on the entry at
// startMs, samples moves per edge spaced stepMs apart, and release on the
// exit. Steps do not include a materialization notice.
func TraceSteps(g *sigil.Graph, startMs, stepMs int64, samples int) []Step {
	if samples < 1 {
		samples = 1
	}
	at := startMs
	entry := g.Entry().Pos
	steps := []Step{{At: at, Action: ActionDown, X: entry.X, Y: entry.Y}}
	for i := 0; i < g.NumEdges(); i++ {
		from, to := g.Segment(i)
		for k := 1; k <= samples; k++ {
			at += stepMs
			p := from.Lerp(to, float64(k)/float64(samples))
			steps = append(steps, Step{At: at, Action: ActionMove, X: p.X, Y: p.Y})
		}
	}
	exit := g.Exit().Pos
	steps = append(steps, Step{At: at + stepMs, Action: ActionUp, X: exit.X, Y: exit.Y})
	return steps
}

package verifier

import "fmt"

// State is a phase of the verifier's attempt state machine.
type State int

const (
	Idle State = iota
	Materializing
	AwaitingStart
	Tracing
	Success
	Failed
	Resetting
)

var stateNames = map[State]string{
	Idle:          "idle",
	Materializing: "materializing",
	AwaitingStart: "awaiting-start",
	Tracing:       "tracing",
	Success:       "success",
	Failed:        "failed",
	Resetting:     "resetting",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseState maps a state name back to its State.
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return Idle, false
}

// acceptsPointer reports whether pointer input can change the attempt.
func (s State) acceptsPointer() bool {
	return s == AwaitingStart || s == Tracing
}

// FailureReason classifies a failed attempt.
type FailureReason string

const (
	ReasonPathDeviation     FailureReason = "path-deviation"
	ReasonIncompleteRelease FailureReason = "incomplete-release"
	ReasonTimeout           FailureReason = "timeout"
)

// Hooks are the verifier's outbound notifications. Nil fields are skipped.
// Hooks run after the triggering transition has completed and may call back
// into the verifier.
type Hooks struct {
	OnStateChanged func(State)
	OnFailed       func(FailureReason)
	OnSuccess      func()
	OnTick         func(remainingMs int64)
}

// Chain returns Hooks that invoke each of hs in order.
func Chain(hs ...Hooks) Hooks {
	return Hooks{
		OnStateChanged: func(s State) {
			for _, h := range hs {
				if h.OnStateChanged != nil {
					h.OnStateChanged(s)
				}
			}
		},
		OnFailed: func(r FailureReason) {
			for _, h := range hs {
				if h.OnFailed != nil {
					h.OnFailed(r)
				}
			}
		},
		OnSuccess: func() {
			for _, h := range hs {
				if h.OnSuccess != nil {
					h.OnSuccess()
				}
			}
		},
		OnTick: func(ms int64) {
			for _, h := range hs {
				if h.OnTick != nil {
					h.OnTick(ms)
				}
			}
		},
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	parsed, ok := ParseState(string(b))
	if !ok {
		return fmt.Errorf("unknown verifier state %q", string(b))
	}
	*s = parsed
	return nil
}

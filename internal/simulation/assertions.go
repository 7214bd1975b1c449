package simulation

import (
	"slices"
	"testing"

	"github.com/nvandessel/sigilgate/internal/verifier"
)

// AssertOutcome asserts the replay ended with outcome and, when reason is
// non-empty, with that failure reason.
func AssertOutcome(t *testing.T, res *Result, outcome Outcome, reason verifier.FailureReason) {
	t.Helper()
	if res.Outcome != outcome {
		t.Errorf("AssertOutcome: %s: outcome = %s, want %s (events: %v)", res.Name, res.Outcome, outcome, res.Events)
	}
	if reason != "" && res.Reason != reason {
		t.Errorf("AssertOutcome: %s: reason = %q, want %q", res.Name, res.Reason, reason)
	}
}

// AssertEventCount asserts exactly n events of kind were delivered.
func AssertEventCount(t *testing.T, res *Result, kind string, n int) {
	t.Helper()
	if got := res.Count(kind); got != n {
		t.Errorf("AssertEventCount: %s: %d %q events, want %d", res.Name, got, kind, n)
	}
}

// AssertStates asserts the exact sequence of states entered.
func AssertStates(t *testing.T, res *Result, want ...verifier.State) {
	t.Helper()
	names := make([]string, len(want))
	for i, s := range want {
		names[i] = s.String()
	}
	if got := res.States(); !slices.Equal(got, names) {
		t.Errorf("AssertStates: %s: states = %v, want %v", res.Name, got, names)
	}
}

// AssertPassed asserts the scenario's own expectation held.
func AssertPassed(t *testing.T, res *Result) {
	t.Helper()
	for _, f := range res.Failures {
		t.Errorf("AssertPassed: %s: %s", res.Name, f)
	}
}

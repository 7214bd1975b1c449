// Package simulation replays scripted pointer gestures against the real
// verifier on a virtual clock.
//
// A Scenario is a list of timed steps (pointer down, move, up, leave,
// materialization notices and waits) plus an optional expectation. The
// Runner drives a verifier.Verifier on a schedule.Manual clock, so a
// seven second timeout takes no wall time and every run is deterministic.
//
// Scenarios are usually YAML files replayed by `sigilgate replay`, or Go
// values built in tests:
//
//	r, _ := simulation.NewRunner(verifier.DefaultConfig(), graph)
//	res, err := r.Run(simulation.Scenario{
//	    Name:  "clean-trace",
//	    Steps: simulation.TraceSteps(graph, 0, 50, 4),
//	})
//	simulation.AssertOutcome(t, res, simulation.OutcomeSuccess, "")
package simulation

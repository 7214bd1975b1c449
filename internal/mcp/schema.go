package mcp

import (
	"github.com/nvandessel/sigilgate/internal/onboarding"
	"github.com/nvandessel/sigilgate/internal/verifier"
)

// AttemptState is the verifier's view of the current attempt.
type AttemptState struct {
	State           string `json:"state" jsonschema:"idle, materializing, awaiting-start, tracing, success, failed or resetting"`
	Attempt         int    `json:"attempt" jsonschema:"Attempt number, starting at 1"`
	CursorIndex     int    `json:"cursor_index" jsonschema:"Index of the edge being traced"`
	AwaitingRelease bool   `json:"awaiting_release" jsonschema:"All edges traced, waiting for release on the exit"`
	CompletedEdges  []int  `json:"completed_edges"`
	RemainingTimeMs int64  `json:"remaining_time_ms"`
	RetryCount      int    `json:"retry_count"`
	LastFailure     string `json:"last_failure,omitempty" jsonschema:"path-deviation, incomplete-release or timeout"`
}

func attemptState(s verifier.Snapshot) AttemptState {
	edges := s.CompletedEdges
	if edges == nil {
		edges = []int{}
	}
	return AttemptState{
		State:           s.State.String(),
		Attempt:         s.Attempt,
		CursorIndex:     s.CursorIndex,
		AwaitingRelease: s.AwaitingRelease,
		CompletedEdges:  edges,
		RemainingTimeMs: s.RemainingTimeMs,
		RetryCount:      s.RetryCount,
		LastFailure:     string(s.LastFailure),
	}
}

// SessionState is the whole onboarding session.
type SessionState struct {
	SessionID string                       `json:"session_id"`
	Sigil     string                       `json:"sigil,omitempty"`
	Stage     string                       `json:"stage"`
	Completed []string                     `json:"completed"`
	Progress  int                          `json:"progress" jsonschema:"Onboarding progress percentage"`
	Verifier  AttemptState                 `json:"verifier"`
	Upload    onboarding.UploadSnapshot    `json:"upload"`
	Selection onboarding.SelectionSnapshot `json:"selection"`
}

func sessionState(snap onboarding.Snapshot, sigilName string) SessionState {
	completed := make([]string, 0, len(snap.Completed))
	for _, st := range snap.Completed {
		completed = append(completed, string(st))
	}
	sel := snap.Selection
	if sel.Options == nil {
		sel.Options = []string{}
	}
	if sel.Selected == nil {
		sel.Selected = []string{}
	}
	return SessionState{
		SessionID: snap.SessionID,
		Sigil:     sigilName,
		Stage:     string(snap.Stage),
		Completed: completed,
		Progress:  snap.Progress,
		Verifier:  attemptState(snap.Verifier),
		Upload:    snap.Upload,
		Selection: sel,
	}
}

// SigilActivateInput defines the input for sigil_activate tool.
type SigilActivateInput struct {
	Sigil string `json:"sigil,omitempty" jsonschema:"Catalog sigil name or ID to trace (default: the configured sigil)"`
}

// SigilActivateOutput defines the output for sigil_activate tool.
type SigilActivateOutput struct {
	SessionID string       `json:"session_id" jsonschema:"ID of the new onboarding session"`
	Sigil     string       `json:"sigil,omitempty" jsonschema:"Catalog sigil in use, empty for the configured one"`
	Anchors   int          `json:"anchors" jsonschema:"Number of anchors in the sigil"`
	State     AttemptState `json:"state" jsonschema:"Verifier state after activation"`
}

// SigilPointerInput defines the input for sigil_pointer tool.
type SigilPointerInput struct {
	Kind string  `json:"kind" jsonschema:"Pointer event: down, move, up or leave"`
	X    float64 `json:"x,omitempty" jsonschema:"Pointer x in sigil coordinates"`
	Y    float64 `json:"y,omitempty" jsonschema:"Pointer y in sigil coordinates"`
}

// SigilStateInput defines the input for sigil_state tool.
type SigilStateInput struct {
	Since int `json:"since,omitempty" jsonschema:"Only return events with a sequence number above this"`
}

// SigilStateOutput is returned by the sigil_* tools.
type SigilStateOutput struct {
	SessionID string         `json:"session_id"`
	State     AttemptState   `json:"state"`
	Events    []SessionEvent `json:"events" jsonschema:"Hooks delivered since the requested sequence number"`
	LastSeq   int            `json:"last_seq" jsonschema:"Sequence number of the newest event"`
}

// StageInput defines the input for stage_complete and stage_jump tools.
type StageInput struct {
	Stage string `json:"stage" jsonschema:"Stage name: verification, gate-a, gate-b or finished"`
}

// StageStateInput defines the input for stage_state tool.
type StageStateInput struct{}

// StageStateOutput is returned by the stage_* and gate_* tools.
type StageStateOutput struct {
	Accepted bool         `json:"accepted" jsonschema:"Whether the session accepted the request"`
	Session  SessionState `json:"session"`
}

// GateUploadInput defines the input for gate_upload tool.
type GateUploadInput struct {
	Action string `json:"action" jsonschema:"start or cancel"`
}

// GateSelectInput defines the input for gate_select tool.
type GateSelectInput struct {
	Toggle  []string `json:"toggle,omitempty" jsonschema:"Option IDs to toggle, in order"`
	Confirm bool     `json:"confirm,omitempty" jsonschema:"Confirm the selection after toggling"`
}

// SigilGraphInput defines the input for sigil_graph tool.
type SigilGraphInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: dot or json (default: json)"`
	Sigil  string `json:"sigil,omitempty" jsonschema:"Catalog sigil to render instead of the active session's"`
}

// SigilGraphOutput defines the output for sigil_graph tool.
type SigilGraphOutput struct {
	Format  string `json:"format"`
	Graph   any    `json:"graph" jsonschema:"DOT source or JSON graph"`
	Anchors int    `json:"anchors"`
	Edges   int    `json:"edges"`
}

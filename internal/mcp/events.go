package mcp

import (
	"github.com/nvandessel/sigilgate/internal/gate"
	"github.com/nvandessel/sigilgate/internal/onboarding"
	"github.com/nvandessel/sigilgate/internal/sequencer"
	"github.com/nvandessel/sigilgate/internal/verifier"
)

const defaultEventCapacity = 512

// SessionEvent is one hook delivered by the session, numbered so a polling
// client can ask only for what it has not seen.
type SessionEvent struct {
	Seq    int    `json:"seq"`
	Source string `json:"source"` // verifier, sequencer, upload, selection
	Kind   string `json:"kind"`
	Value  any    `json:"value,omitempty"`
}

// eventBuffer keeps the most recent events. Only touched on the loop.
type eventBuffer struct {
	events []SessionEvent
	cap    int
	next   int
}

func newEventBuffer(capacity int) *eventBuffer {
	return &eventBuffer{cap: capacity, next: 1}
}

func (b *eventBuffer) add(source, kind string, value any) {
	b.events = append(b.events, SessionEvent{Seq: b.next, Source: source, Kind: kind, Value: value})
	b.next++
	if over := len(b.events) - b.cap; over > 0 {
		b.events = append(b.events[:0], b.events[over:]...)
	}
}

// since returns the events numbered after seq.
func (b *eventBuffer) since(seq int) []SessionEvent {
	out := []SessionEvent{}
	for _, e := range b.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// latest is the sequence number of the newest event, or 0.
func (b *eventBuffer) latest() int { return b.next - 1 }

// reset drops buffered events but keeps numbering increasing, so a client
// polling across sessions never sees a sequence number reused.
func (b *eventBuffer) reset() { b.events = b.events[:0] }

func (b *eventBuffer) hooks() onboarding.Hooks {
	return onboarding.Hooks{
		Verifier: verifier.Hooks{
			OnStateChanged: func(s verifier.State) { b.add("verifier", "state", s.String()) },
			OnTick:         func(ms int64) { b.add("verifier", "tick", ms) },
			OnFailed:       func(r verifier.FailureReason) { b.add("verifier", "failed", string(r)) },
			OnSuccess:      func() { b.add("verifier", "success", nil) },
		},
		Sequencer: sequencer.Hooks{
			OnStageChanged:    func(s sequencer.Stage) { b.add("sequencer", "stage", string(s)) },
			OnProgressChanged: func(p int) { b.add("sequencer", "progress", p) },
		},
		Upload: gate.UploadHooks{
			OnProgress: func(p int) { b.add("upload", "progress", p) },
			OnComplete: func() { b.add("upload", "complete", nil) },
		},
		Selection: gate.SelectionHooks{
			OnSelectionChanged: func(ids []string) { b.add("selection", "changed", ids) },
			OnComplete:         func() { b.add("selection", "complete", nil) },
		},
	}
}

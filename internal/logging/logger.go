// Package logging provides leveled logging and transition tracing for sigilgate.
//
// Operational output goes to a leveled slog.Logger on stderr. At debug and
// trace levels a TransitionLogger additionally appends every verifier and
// stage transition to .sigilgate/transitions.jsonl for diagnosis. The trace
// file is write-only; nothing in sigilgate reads it back.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/sigilgate/internal/constants"
)

// LevelTrace is a custom slog level below Debug. At this level every pointer
// event is logged in addition to state transitions.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s names a known level.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "warn", "warning", "info", "debug", "trace":
		return true
	}
	return false
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Transition is one line of the transition trace.
type Transition struct {
	Time    time.Time      `json:"time"`
	Session string         `json:"session,omitempty"`
	Kind    string         `json:"kind"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// TransitionLogger appends transitions to a JSONL file. It is safe for
// concurrent use, and a nil *TransitionLogger is a valid no-op logger.
type TransitionLogger struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewTransitionLogger opens dir/transitions.jsonl for append when level is
// debug or trace. At any other level, or if the file cannot be opened, it
// returns nil.
func NewTransitionLogger(dir string, level string) *TransitionLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	path := filepath.Join(dir, constants.TransitionsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &TransitionLogger{file: f, now: time.Now}
}

// Record writes t as one JSONL line, stamping Time when it is zero.
func (tl *TransitionLogger) Record(t Transition) {
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	if t.Time.IsZero() {
		t.Time = tl.now().UTC()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	_, _ = tl.file.Write(append(data, '\n'))
}

// Close closes the trace file.
func (tl *TransitionLogger) Close() {
	if tl == nil {
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file != nil {
		tl.file.Close()
		tl.file = nil
	}
}

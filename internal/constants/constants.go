// Package constants provides named constants used throughout the sigilgate codebase.
// This centralizes tuning values so the verifier, sequencer and config agree.
package constants

import "time"

// Tracing tolerances, in sigil coordinate units.
const (
	// DefaultTolerance is the maximum distance from the current edge before
	// the attempt fails with a path deviation.
	DefaultTolerance = 24.0

	// DefaultCaptureRadius is the distance at which the pointer counts as
	// having reached an anchor. Must not exceed the tolerance.
	DefaultCaptureRadius = 18.0
)

// Attempt timing.
const (
	// DefaultTimeBudget is the countdown for a single attempt.
	DefaultTimeBudget = 7 * time.Second

	// DefaultTickInterval is the countdown granularity reported to the presentation layer.
	DefaultTickInterval = time.Second

	// DefaultFailHold is how long a failure is displayed before the attempt resets.
	DefaultFailHold = 1200 * time.Millisecond

	// DefaultSuccessHold is how long success is displayed before the stage completes.
	DefaultSuccessHold = 800 * time.Millisecond
)

// Default sigil shape: a five anchor zig-zag.
const (
	DefaultSigilAnchors   = 5
	DefaultSigilStep      = 120.0
	DefaultSigilAmplitude = 90.0
)

// Progress percentages keyed to the highest completed stage, in stage order.
// Later stages are worth more.
var DefaultProgressTable = []int{15, 50, 100}

// Reference gate defaults.
const (
	// DefaultUploadDuration is the simulated upload length.
	DefaultUploadDuration = 3 * time.Second

	// DefaultUploadSteps is how many progress updates the simulated upload reports.
	DefaultUploadSteps = 10

	// DefaultSelectionRequired is how many options the selection gate requires.
	DefaultSelectionRequired = 3
)

// DefaultSelectionOptions are the choices offered by the selection gate.
var DefaultSelectionOptions = []string{"ember", "tide", "gale", "stone", "thorn", "bloom"}

// Files under the .sigilgate directory.
const (
	DirName         = ".sigilgate"
	ConfigFile      = "config.yaml"
	CatalogFile     = "sigils.db"
	TransitionsFile = "transitions.jsonl"
	AuditFile       = "audit.jsonl"
	BackupsDir      = "backups"
)

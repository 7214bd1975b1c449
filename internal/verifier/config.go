package verifier

import (
	"time"

	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/sigil"
)

// Config holds the spatial and timing rules for tracing a sigil.
type Config struct {
	// Tolerance is the maximum distance from the current edge while tracing.
	Tolerance float64

	// CaptureRadius is the distance at which the pointer has reached an
	// anchor. Must be in (0, Tolerance].
	CaptureRadius float64

	// TimeBudget is the countdown for one attempt, started when the attempt
	// becomes ready for input.
	TimeBudget time.Duration

	// TickInterval is the countdown granularity. Default: 1s.
	TickInterval time.Duration

	// FailHold is how long Failed is shown before the attempt resets.
	FailHold time.Duration

	// SuccessHold is how long Success is shown before OnSuccess fires.
	SuccessHold time.Duration
}

// DefaultConfig returns the default tracing rules.
func DefaultConfig() Config {
	return Config{
		Tolerance:     constants.DefaultTolerance,
		CaptureRadius: constants.DefaultCaptureRadius,
		TimeBudget:    constants.DefaultTimeBudget,
		TickInterval:  constants.DefaultTickInterval,
		FailHold:      constants.DefaultFailHold,
		SuccessHold:   constants.DefaultSuccessHold,
	}
}

// Validate returns a *sigil.ConfigurationError when the rules are unusable.
func (c Config) Validate() error {
	if c.Tolerance <= 0 {
		return sigil.Errorf(sigil.ErrInvalidTolerance, "tolerance must be > 0, got %v", c.Tolerance)
	}
	if c.CaptureRadius <= 0 || c.CaptureRadius > c.Tolerance {
		return sigil.Errorf(sigil.ErrInvalidCapture, "capture radius must be in (0, %v], got %v", c.Tolerance, c.CaptureRadius)
	}
	if c.TimeBudget <= 0 {
		return sigil.Errorf(sigil.ErrInvalidBudget, "time budget must be > 0, got %v", c.TimeBudget)
	}
	if c.TickInterval < 0 || c.FailHold < 0 || c.SuccessHold < 0 {
		return sigil.Errorf(sigil.ErrInvalidBudget, "tick interval and hold durations must be non-negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = constants.DefaultTickInterval
	}
	return c
}

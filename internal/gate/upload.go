// Package gate provides reference implementations of the two onboarding
// completion gates so a whole onboarding can run headless.
//
// Gates are single-threaded like the rest of the core: every call and every
// scheduler callback must come from the same goroutine.
package gate

import (
	"fmt"
	"time"

	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/schedule"
)

// UploadConfig controls the simulated upload.
type UploadConfig struct {
	Duration time.Duration
	Steps    int
}

// DefaultUploadConfig returns the default simulated upload.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		Duration: constants.DefaultUploadDuration,
		Steps:    constants.DefaultUploadSteps,
	}
}

// Validate checks that the upload can make progress.
func (c UploadConfig) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("upload duration must be > 0, got %v", c.Duration)
	}
	if c.Steps <= 0 || c.Steps > 100 {
		return fmt.Errorf("upload steps must be in [1,100], got %d", c.Steps)
	}
	return nil
}

// UploadHooks receive upload notifications. Nil fields are skipped.
type UploadHooks struct {
	OnProgress func(percent int)
	OnComplete func()
}

// UploadGate simulates a file upload that reports progress in even steps
// over a fixed duration and completes at 100%.
type UploadGate struct {
	cfg   UploadConfig
	sched schedule.Scheduler
	hooks UploadHooks

	timer     schedule.Timer
	step      int
	percent   int
	running   bool
	completed bool
	gen       uint64
}

// NewUpload returns an idle upload gate.
func NewUpload(cfg UploadConfig, sched schedule.Scheduler, hooks UploadHooks) (*UploadGate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, fmt.Errorf("upload gate needs a scheduler")
	}
	return &UploadGate{cfg: cfg, sched: sched, hooks: hooks}, nil
}

// Start begins a fresh upload. It is a no-op while an upload is running.
func (u *UploadGate) Start() {
	if u.running {
		return
	}
	u.gen++
	u.running = true
	u.step = 0
	u.percent = 0
	u.scheduleStep()
}

// Cancel stops a running upload and clears its progress.
func (u *UploadGate) Cancel() {
	schedule.StopAll(u.timer)
	u.timer = nil
	u.gen++
	u.running = false
	u.step = 0
	u.percent = 0
}

// Running reports whether an upload is in progress.
func (u *UploadGate) Running() bool { return u.running }

// Completed reports whether any upload has reached 100%.
func (u *UploadGate) Completed() bool { return u.completed }

// Percent returns the progress of the current or last upload.
func (u *UploadGate) Percent() int { return u.percent }

func (u *UploadGate) scheduleStep() {
	gen := u.gen
	interval := u.cfg.Duration / time.Duration(u.cfg.Steps)
	u.timer = u.sched.After(interval, func() {
		if gen != u.gen {
			return
		}
		u.advance()
	})
}

func (u *UploadGate) advance() {
	u.timer = nil
	u.step++
	u.percent = u.step * 100 / u.cfg.Steps
	if u.hooks.OnProgress != nil {
		u.hooks.OnProgress(u.percent)
	}
	if u.step < u.cfg.Steps {
		u.scheduleStep()
		return
	}
	u.running = false
	u.completed = true
	if u.hooks.OnComplete != nil {
		u.hooks.OnComplete()
	}
}

// Package ratelimit provides per-key token bucket rate limiting for the
// MCP tool surface.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is wrapped by every rejection from Check.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter is a per-key token bucket. Each key gets its own bucket with the
// configured rate and burst. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // also the initial token count
	now     func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// PerMinute converts a per-minute budget to tokens per second.
func PerMinute(n float64) float64 { return n / 60 }

// NewLimiter returns a limiter refilling at rate tokens per second up to burst.
func NewLimiter(rate float64, burst int, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow takes one token from key's bucket, reporting whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastCheck = now
	}

	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default limits for the sigil tools. Pointer
// events arrive at gesture sampling rates, so sigil_pointer gets a far
// larger budget than the stage controls.
func NewToolLimiters(opts ...Option) ToolLimiters {
	return ToolLimiters{
		"sigil_activate":     NewLimiter(PerMinute(30), 5, opts...),
		"sigil_materialized": NewLimiter(PerMinute(60), 5, opts...),
		"sigil_pointer":      NewLimiter(120, 240, opts...),
		"sigil_state":        NewLimiter(10, 20, opts...),
		"sigil_graph":        NewLimiter(PerMinute(30), 5, opts...),
		"stage_complete":     NewLimiter(PerMinute(30), 5, opts...),
		"stage_jump":         NewLimiter(PerMinute(30), 5, opts...),
		"stage_state":        NewLimiter(10, 20, opts...),
		"gate_upload":        NewLimiter(PerMinute(30), 5, opts...),
		"gate_select":        NewLimiter(PerMinute(120), 20, opts...),
	}
}

// Check returns nil when tool may run now. Tools without a limiter are
// never limited.
func (t ToolLimiters) Check(tool string) error {
	limiter, ok := t[tool]
	if !ok {
		return nil
	}
	if !limiter.Allow(tool) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, tool)
	}
	return nil
}

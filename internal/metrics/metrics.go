// Package metrics exposes Prometheus collectors for sigil attempts and stage
// progress. Collectors attach to a session through verifier and sequencer
// hooks, so the core packages never import Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/sigilgate/internal/sequencer"
	"github.com/nvandessel/sigilgate/internal/verifier"
)

// Collector records attempt outcomes, failure reasons, verifier transitions
// and stage progress.
type Collector struct {
	attempts      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	traceDuration prometheus.Histogram
	stageChanges  *prometheus.CounterVec
	progress      prometheus.Gauge
	sessions      prometheus.Counter

	now          func() time.Time
	tracingSince time.Time
}

// New registers the collectors on reg under namespace. now supplies the clock
// for trace durations; pass the session scheduler's Now so virtual time works.
func New(reg prometheus.Registerer, namespace string, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	f := promauto.With(reg)
	return &Collector{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sigil",
			Name:      "attempts_total",
			Help:      "Finished sigil attempts by outcome",
		}, []string{"outcome"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sigil",
			Name:      "failures_total",
			Help:      "Failed sigil attempts by reason",
		}, []string{"reason"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sigil",
			Name:      "transitions_total",
			Help:      "Verifier state entries by state",
		}, []string{"state"}),
		traceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sigil",
			Name:      "trace_duration_seconds",
			Help:      "Time from pointer down on the entry anchor to success or failure",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 7, 10},
		}),
		stageChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "onboarding",
			Name:      "stage_changes_total",
			Help:      "Stage entries by stage",
		}, []string{"stage"}),
		progress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "onboarding",
			Name:      "progress_percent",
			Help:      "Progress of the most recently updated session",
		}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "onboarding",
			Name:      "sessions_total",
			Help:      "Onboarding sessions started",
		}),
		now: now,
	}
}

// SessionStarted counts a new onboarding session.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.sessions.Inc()
	c.progress.Set(0)
}

// VerifierHooks returns hooks that record verifier activity. A nil Collector
// returns empty hooks.
func (c *Collector) VerifierHooks() verifier.Hooks {
	if c == nil {
		return verifier.Hooks{}
	}
	return verifier.Hooks{
		OnStateChanged: func(s verifier.State) {
			c.transitions.WithLabelValues(s.String()).Inc()
			switch s {
			case verifier.Tracing:
				c.tracingSince = c.now()
			case verifier.Success, verifier.Failed:
				if !c.tracingSince.IsZero() {
					c.traceDuration.Observe(c.now().Sub(c.tracingSince).Seconds())
					c.tracingSince = time.Time{}
				}
			case verifier.Idle, verifier.Resetting:
				c.tracingSince = time.Time{}
			}
		},
		OnFailed: func(r verifier.FailureReason) {
			c.attempts.WithLabelValues("failed").Inc()
			c.failures.WithLabelValues(string(r)).Inc()
		},
		OnSuccess: func() {
			c.attempts.WithLabelValues("success").Inc()
		},
	}
}

// SequencerHooks returns hooks that record stage progress. A nil Collector
// returns empty hooks.
func (c *Collector) SequencerHooks() sequencer.Hooks {
	if c == nil {
		return sequencer.Hooks{}
	}
	return sequencer.Hooks{
		OnStageChanged: func(s sequencer.Stage) {
			c.stageChanges.WithLabelValues(string(s)).Inc()
		},
		OnProgressChanged: func(p int) {
			c.progress.Set(float64(p))
		},
	}
}

// Serve exposes reg on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("serving metrics", "addr", ln.Addr().String())
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Package sweep evicts stale defense state. The trackers and controllers
// reset windows lazily on access; this worker reclaims the memory of keys
// that never come back.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"taskdesk/internal/platform/metrics"
)

// Sweepable is any counter table that can evict entries idle at time now.
type Sweepable interface {
	Sweep(now time.Time) int
}

// SweepFunc adapts a bare function to Sweepable.
type SweepFunc func(now time.Time) int

func (f SweepFunc) Sweep(now time.Time) int { return f(now) }

// Result summarizes one sweep run.
type Result struct {
	Evicted  int
	Duration time.Duration
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

type Sweeper struct {
	targets  []Sweepable
	logger   *slog.Logger
	interval time.Duration
	metrics  *metrics.Metrics
}

func New(targets []Sweepable, opts ...Option) *Sweeper {
	s := &Sweeper{
		targets:  targets,
		logger:   slog.Default(),
		interval: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			res := s.RunOnce(start)

			s.logger.Info("defense_sweep_completed",
				"evicted", res.Evicted,
				"duration_ms", res.Duration.Milliseconds(),
			)
			s.metrics.IncSweepRun("success")
			s.metrics.AddSweepEvictions(res.Evicted)
			s.metrics.ObserveSweepDuration(res.Duration.Seconds())

		case <-ctx.Done():
			s.logger.Info("defense sweep worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce sweeps every target once. All sweeps are in-memory and cannot fail.
func (s *Sweeper) RunOnce(now time.Time) Result {
	evicted := 0
	for _, t := range s.targets {
		evicted += t.Sweep(now)
	}
	return Result{Evicted: evicted, Duration: time.Since(now)}
}

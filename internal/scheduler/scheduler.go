// Package scheduler periodically refreshes every registered chart.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chainstats/stats-engine/internal/charts"
)

// Updater is the part of the chart registry the scheduler drives.
type Updater interface {
	UpdateAll(ctx context.Context, forceFull bool) ([]charts.Result, error)
}

// Config holds scheduler configuration.
type Config struct {
	Interval     time.Duration // time between update passes
	ForceOnStart bool          // first pass recomputes every chart from scratch
	PassTimeout  time.Duration // upper bound for one pass; 0 means Interval
}

// Scheduler runs update passes until its context is cancelled. Passes never
// overlap; a slow pass delays the next tick.
type Scheduler struct {
	config  Config
	updater Updater

	passes   atomic.Int64
	failures atomic.Int64
}

// NewScheduler creates a scheduler for the given registry.
func NewScheduler(config Config, updater Updater) *Scheduler {
	if config.PassTimeout <= 0 {
		config.PassTimeout = config.Interval
	}
	return &Scheduler{config: config, updater: updater}
}

// Start runs an immediate pass, then one per interval. It blocks until ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("scheduler starting", "interval", s.config.Interval, "force_on_start", s.config.ForceOnStart)

	s.RunOnce(ctx, s.config.ForceOnStart)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "passes", s.passes.Load())
			return
		case <-ticker.C:
			s.RunOnce(ctx, false)
		}
	}
}

// RunOnce performs a single update pass and reports whether every chart
// updated successfully.
func (s *Scheduler) RunOnce(ctx context.Context, forceFull bool) bool {
	ctx, cancel := context.WithTimeout(ctx, s.config.PassTimeout)
	defer cancel()

	start := time.Now()
	results, err := s.updater.UpdateAll(ctx, forceFull)
	s.passes.Add(1)

	rows := 0
	for _, r := range results {
		rows += r.Rows
	}
	if err != nil {
		s.failures.Add(1)
		slog.Error("update pass finished with failures",
			"updated", len(results), "rows", rows, "duration", time.Since(start), "err", err)
		return false
	}
	slog.Info("update pass finished", "updated", len(results), "rows", rows, "duration", time.Since(start))
	return true
}

// Stats returns the number of passes run and how many had failures.
func (s *Scheduler) Stats() (passes, failures int64) {
	return s.passes.Load(), s.failures.Load()
}

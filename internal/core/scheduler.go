package core

// scheduler.go runs the expiry sweeper.
//
// The sweeper deletes cleaned outputs, staged inputs and abandoned partial
// files once they are older than MaxAge, and purges job history older than
// HistoryRetention. It runs once at start, then every Interval, until its
// context is cancelled. A sweep still running when the next tick fires makes
// that tick a no-op.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/filecleaner/internal/artifact"
	"github.com/JonMunkholm/filecleaner/internal/logging"
)

const (
	// DefaultSweepInterval is how often the sweeper runs.
	DefaultSweepInterval = 6 * time.Hour

	// DefaultHistoryRetention is how long job history rows are kept.
	DefaultHistoryRetention = 30 * 24 * time.Hour
)

// ErrSweepRunning is returned by Sweep when another sweep is in progress.
var ErrSweepRunning = errors.New("sweep already in progress")

// SweepConfig holds configuration for the expiry sweeper.
// Zero values use the defaults.
type SweepConfig struct {
	Interval         time.Duration // How often to run (default: 6h)
	MaxAge           time.Duration // File age before deletion (default: store retention)
	HistoryRetention time.Duration // Job history age before purge (default: 30 days)
}

func (c SweepConfig) withDefaults(store *artifact.Store) SweepConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = store.Retention()
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = DefaultHistoryRetention
	}
	return c
}

// StartSweeper runs the sweeper until ctx is cancelled. It blocks; start it
// in its own goroutine.
func (s *Service) StartSweeper(ctx context.Context, cfg SweepConfig) {
	cfg = cfg.withDefaults(s.store)
	slog.Info("expiry sweeper started",
		"dir", s.store.Root(),
		"interval", cfg.Interval.String(),
		"max_age", cfg.MaxAge.String(),
		"history_enabled", s.history.Enabled(),
	)

	// Run immediately on startup
	s.startSweepJob(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.sweepWG.Wait()
			slog.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.startSweepJob(ctx, cfg)
		}
	}
}

// startSweepJob runs one sweep in the background unless one is running.
func (s *Service) startSweepJob(ctx context.Context, cfg SweepConfig) {
	if !s.sweeping.CompareAndSwap(false, true) {
		slog.Warn("previous sweep still running, skipping this run")
		return
	}
	s.sweepWG.Add(1)
	go func() {
		defer s.sweepWG.Done()
		defer s.sweeping.Store(false)
		s.runSweepJob(ctx, cfg)
	}()
}

// Sweep runs one sweep now and returns its result. It fails with
// ErrSweepRunning when the background sweeper is mid-run.
func (s *Service) Sweep(ctx context.Context, maxAge time.Duration) (artifact.SweepResult, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return artifact.SweepResult{}, ErrSweepRunning
	}
	defer s.sweeping.Store(false)

	if maxAge <= 0 {
		maxAge = s.store.Retention()
	}
	return s.sweepFiles(ctx, maxAge)
}

// runSweepJob performs one file sweep and history purge.
func (s *Service) runSweepJob(ctx context.Context, cfg SweepConfig) {
	slog.Debug("sweep job started")
	start := time.Now()

	if _, err := s.sweepFiles(ctx, cfg.MaxAge); err != nil {
		slog.Error("sweep failed", "error", err)
	}

	if s.history.Enabled() {
		purgeStart := time.Now()
		purged, err := s.history.Purge(ctx, cfg.HistoryRetention)
		if err != nil {
			slog.Error("history purge failed", "error", err)
		} else {
			slog.Info("purged old job history",
				"entries_purged", purged,
				logging.Duration("elapsed", time.Since(purgeStart)),
			)
		}
	}

	slog.Info("sweep job completed", logging.Duration("elapsed", time.Since(start)))
}

func (s *Service) sweepFiles(ctx context.Context, maxAge time.Duration) (artifact.SweepResult, error) {
	start := time.Now()
	res, err := s.store.Sweep(ctx, maxAge)
	elapsed := time.Since(start)

	s.metrics.RecordSweep(err == nil, elapsed, map[string]int{
		string(artifact.KindOutput):  res.OutputsDeleted,
		string(artifact.KindInput):   res.InputsDeleted,
		string(artifact.KindPartial): res.PartialsDeleted,
	})
	if err != nil {
		return res, err
	}

	slog.Info("expired files removed",
		"scanned", res.Scanned,
		"deleted", res.Deleted(),
		"outputs", res.OutputsDeleted,
		"inputs", res.InputsDeleted,
		"partials", res.PartialsDeleted,
		"errors", res.Errors,
		logging.Size("freed", res.BytesFreed),
		logging.Duration("elapsed", elapsed),
	)
	return res, nil
}

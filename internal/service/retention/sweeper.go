package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ravikumar582002/API-TRACKER/internal/repository"
)

const (
	defaultHorizon  = 90 * 24 * time.Hour
	defaultInterval = time.Hour
)

// Sweeper hard-deletes telemetry records older than the retention horizon.
// It runs in the background and may overlap aggregation queries; a query
// spanning the eviction boundary may or may not see a boundary-aged record.
type Sweeper struct {
	repo     repository.TelemetryRepository
	horizon  time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Sweeper with the given retention horizon and sweep
// interval; non-positive values fall back to 90 days and one hour.
func New(repo repository.TelemetryRepository, logger *slog.Logger, horizon, interval time.Duration) *Sweeper {
	if horizon <= 0 {
		horizon = defaultHorizon
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger != nil {
		logger = logger.With("component", "retention_sweeper")
	}
	return &Sweeper{
		repo:     repo,
		horizon:  horizon,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run starts the sweep loop. It blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	if s.logger != nil {
		s.logger.Info("retention sweeper started", "horizon", s.horizon, "interval", s.interval)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Info("retention sweeper stopped")
			}
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && s.logger != nil {
				s.logger.Warn("retention sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce deletes all records past the horizon and reports how many were
// removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errors.New("retention sweeper not initialised")
	}
	cutoff := s.now().UTC().Add(-s.horizon)
	deleted, err := s.repo.DeleteRecordsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 && s.logger != nil {
		s.logger.Info("evicted expired telemetry records", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Package maintenance provides scheduled cleanup of aged metering data.
package maintenance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RetentionStore defines the interface for retention cleanup data access.
type RetentionStore interface {
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionScheduler runs periodic cleanup of old usage snapshots.
type RetentionScheduler struct {
	store         RetentionStore
	retentionDays int
	cron          *cron.Cron
	logger        zerolog.Logger
	mu            sync.Mutex
	running       bool
}

// NewRetentionScheduler creates a new retention cleanup scheduler.
func NewRetentionScheduler(store RetentionStore, retentionDays int, logger zerolog.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		store:         store,
		retentionDays: retentionDays,
		cron:          cron.New(),
		logger:        logger.With().Str("component", "retention").Logger(),
	}
}

// Start begins the daily retention cleanup schedule at 3:00 AM UTC.
func (s *RetentionScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("retention scheduler already running")
	}

	_, err := s.cron.AddFunc("0 3 * * *", s.runCleanup)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Int("retention_days", s.retentionDays).
		Msg("retention scheduler started (daily at 03:00 UTC)")

	return nil
}

// Stop stops the retention scheduler gracefully.
func (s *RetentionScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping retention scheduler")
	return s.cron.Stop()
}

// runCleanup deletes snapshots older than the retention window.
func (s *RetentionScheduler) runCleanup() {
	ctx := context.Background()
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	deleted, err := s.store.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("snapshot retention cleanup failed")
		return
	}

	s.logger.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("snapshot retention cleanup completed")
}

// Package metering provides buffered usage metering, statistical aggregation,
// and quota limit evaluation for licenses.
package metering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/licensing"
	"github.com/quotientlabs/quotient/internal/metrics"
	"github.com/quotientlabs/quotient/internal/models"
	"github.com/rs/zerolog"
)

// Store defines the persistence boundary needed by the metering service.
type Store interface {
	GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error)

	SaveSnapshot(ctx context.Context, snapshot *models.UsageSnapshot) error
	// GetLatestSnapshot returns (nil, nil) when no snapshot exists yet.
	GetLatestSnapshot(ctx context.Context, licenseID uuid.UUID, metric models.MetricType) (*models.UsageSnapshot, error)
	GetSnapshotsInRange(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, start, end time.Time) ([]*models.UsageSnapshot, error)
	GetDistinctLicenseIDs(ctx context.Context) ([]uuid.UUID, error)

	SaveUsageEvent(ctx context.Context, event *models.UsageEvent) error
	GetUsageEvents(ctx context.Context, licenseID uuid.UUID, start, end *time.Time) ([]*models.UsageEvent, error)
}

// ContextResolver resolves license context with bounded latency. Satisfied by
// *licensing.Resolver; tests substitute in-memory fakes.
type ContextResolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (*models.License, error)
}

// Config holds configuration for the metering service.
type Config struct {
	// FlushInterval is how often the timer flushes all non-empty buffer slots.
	FlushInterval time.Duration
	// VolumeThreshold is the slot size that triggers an immediate flush.
	VolumeThreshold int
	// AlertThresholdPct is the utilization percentage that raises a
	// limit-exceeded event.
	AlertThresholdPct float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval:     5 * time.Minute,
		VolumeThreshold:   100,
		AlertThresholdPct: 80,
	}
}

// Service meters per-license usage. API call usage is buffered per
// (license, metric) slot and flushed either on a timer or when a slot reaches
// the volume threshold; all other metrics are point-in-time values persisted
// immediately. The service owns its buffer map and its flush goroutine.
type Service struct {
	store    Store
	resolver ContextResolver
	config   Config
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	buffer *buffer

	stopCh chan struct{}
}

// NewService creates a new metering Service. resolver and m may be nil.
func NewService(store Store, resolver ContextResolver, config Config, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		config:   config,
		logger:   logger.With().Str("component", "metering_service").Logger(),
		metrics:  m,
		buffer:   newBuffer(),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background flush timer.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().
		Dur("flush_interval", s.config.FlushInterval).
		Int("volume_threshold", s.config.VolumeThreshold).
		Msg("starting metering service")

	go s.runFlushes(ctx)
}

// Stop stops the flush timer and performs a final flush so detached batches
// are not lost on shutdown.
func (s *Service) Stop() {
	s.logger.Info().Msg("stopping metering service")
	close(s.stopCh)
}

// runFlushes periodically flushes all non-empty buffer slots.
func (s *Service) runFlushes(ctx context.Context) {
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushAll(context.Background())
			return
		case <-s.stopCh:
			s.FlushAll(context.Background())
			return
		case <-ticker.C:
			s.FlushAll(ctx)
		}
	}
}

// RecordUsage is the sole metering entry point. For api_calls the event is
// buffered and flushed=true is returned when the enqueue crossed the volume
// threshold and flushed its slot. For every other metric type amount is a
// point-in-time level that replaces the current value and is persisted
// immediately, followed by limit evaluation.
func (s *Service) RecordUsage(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, amount int64, meta *models.APICallRecord) (bool, error) {
	if !metric.Valid() {
		return false, fmt.Errorf("unknown metric type %q", metric)
	}

	if metric == models.MetricAPICalls {
		return s.recordAPICall(ctx, licenseID, meta), nil
	}

	return false, s.recordGaugeMetric(ctx, licenseID, metric, amount)
}

// recordAPICall appends one raw event to the (license, api_calls) slot and
// synchronously flushes the slot when it reaches the volume threshold.
func (s *Service) recordAPICall(ctx context.Context, licenseID uuid.UUID, meta *models.APICallRecord) bool {
	rec := models.APICallRecord{Timestamp: time.Now()}
	if meta != nil {
		rec = *meta
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now()
		}
	}

	size, needsContext := s.buffer.enqueue(licenseID, models.MetricAPICalls, rec)
	if s.metrics != nil {
		s.metrics.UsageEnqueuedTotal.Inc()
		s.metrics.BufferedEvents.Inc()
	}

	// First insertion into the slot captures license context best-effort. A
	// failed resolution leaves the slot license-ID-only; the flush then meters
	// against the fallback limit so data is never dropped.
	if needsContext {
		lic := s.resolveBestEffort(ctx, licenseID)
		if lic != nil {
			s.buffer.setLicense(licenseID, models.MetricAPICalls, lic)
		}
	}

	if size >= s.config.VolumeThreshold {
		batch, lic := s.buffer.detach(licenseID, models.MetricAPICalls)
		s.flushBatch(ctx, licenseID, models.MetricAPICalls, batch, lic, "volume")
		return len(batch) > 0
	}
	return false
}

// recordGaugeMetric persists a point-in-time metric value as a snapshot of one.
func (s *Service) recordGaugeMetric(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative usage amount %d for metric %s", amount, metric)
	}

	lic := s.resolveBestEffort(ctx, licenseID)
	limit := licensing.ResolveLimit(lic, metric)

	snapshot := models.NewUsageSnapshot(licenseID, metric, amount, limit, utilizationPct(amount, limit))
	if err := s.store.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("save %s snapshot: %w", metric, err)
	}

	if _, err := s.Evaluate(ctx, licenseID, metric, amount, limit); err != nil {
		s.logger.Error().Err(err).
			Str("license_id", licenseID.String()).
			Str("metric_type", string(metric)).
			Msg("limit evaluation failed")
	}
	return nil
}

// FlushAll detaches and flushes every non-empty buffer slot. Used by the timer
// tick and by shutdown.
func (s *Service) FlushAll(ctx context.Context) {
	for _, d := range s.buffer.detachAll() {
		s.flushBatch(ctx, d.licenseID, d.metric, d.events, d.lic, "timer")
	}
}

// flushBatch aggregates one detached batch into a snapshot, persists it, and
// evaluates the limit. Once a batch is detached it is processed to completion;
// a persistence failure loses the batch and is logged loudly as the canonical
// signal of metering data loss.
func (s *Service) flushBatch(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, events []models.APICallRecord, lic *models.License, trigger string) {
	if len(events) == 0 {
		return
	}

	start := time.Now()
	if s.metrics != nil {
		s.metrics.BufferedEvents.Sub(float64(len(events)))
		s.metrics.FlushesTotal.WithLabelValues(trigger).Inc()
	}

	prior, err := s.store.GetLatestSnapshot(ctx, licenseID, metric)
	if err != nil {
		s.logger.Error().Err(err).
			Str("license_id", licenseID.String()).
			Str("metric_type", string(metric)).
			Msg("failed to read prior snapshot, starting counter from batch")
	}

	var priorValue int64
	var priorStats *models.APICallStats
	if prior != nil {
		priorValue = prior.CurrentValue
		priorStats = prior.Metadata
	}

	current := priorValue + int64(len(events))
	limit := licensing.ResolveLimit(lic, metric)

	snapshot := models.NewUsageSnapshot(licenseID, metric, current, limit, utilizationPct(current, limit))
	snapshot.Metadata = aggregateBatch(events, priorStats)

	if err := s.store.SaveSnapshot(ctx, snapshot); err != nil {
		if s.metrics != nil {
			s.metrics.FlushErrorsTotal.Inc()
		}
		s.logger.Error().Err(err).
			Str("license_id", licenseID.String()).
			Str("metric_type", string(metric)).
			Int("batch_size", len(events)).
			Msg("failed to persist usage snapshot, batch lost")
		return
	}

	if s.metrics != nil {
		s.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}

	s.logger.Debug().
		Str("license_id", licenseID.String()).
		Str("metric_type", string(metric)).
		Str("trigger", trigger).
		Int("batch_size", len(events)).
		Int64("current_value", current).
		Float64("utilization_pct", snapshot.UtilizationPct).
		Msg("usage snapshot persisted")

	if _, err := s.Evaluate(ctx, licenseID, metric, current, limit); err != nil {
		s.logger.Error().Err(err).
			Str("license_id", licenseID.String()).
			Str("metric_type", string(metric)).
			Msg("limit evaluation failed")
	}
}

// BufferedCount returns the number of events currently buffered for a slot.
func (s *Service) BufferedCount(licenseID uuid.UUID, metric models.MetricType) int {
	return s.buffer.size(licenseID, metric)
}

// resolveBestEffort resolves license context, logging and swallowing every
// failure. Metering proceeds without context rather than failing the caller.
func (s *Service) resolveBestEffort(ctx context.Context, licenseID uuid.UUID) *models.License {
	if s.resolver == nil {
		return nil
	}
	lic, err := s.resolver.Resolve(ctx, licenseID)
	if err != nil {
		s.logger.Debug().Err(err).
			Str("license_id", licenseID.String()).
			Msg("license context unavailable, metering with fallback limits")
		return nil
	}
	return lic
}

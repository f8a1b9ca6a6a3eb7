package metering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/models"
	"github.com/rs/zerolog"
)

// MetricReport is the per-metric entry of a consolidated usage report, taken
// from the single most recent snapshot for that metric.
type MetricReport struct {
	CurrentValue   int64                `json:"current_value"`
	Limit          int64                `json:"limit"`
	UtilizationPct float64              `json:"utilization_pct"`
	LastUpdated    time.Time            `json:"last_updated"`
	Metadata       *models.APICallStats `json:"metadata,omitempty"`
}

// ConsolidatedReport is a multi-metric usage report for one license.
type ConsolidatedReport struct {
	LicenseID   uuid.UUID                           `json:"license_id"`
	Utilization map[models.MetricType]*MetricReport `json:"utilization"`
	Timestamp   time.Time                           `json:"timestamp"`
}

// Queries is the read-side API over persisted snapshots and usage events.
type Queries struct {
	store  Store
	logger zerolog.Logger
}

// NewQueries creates a Queries service.
func NewQueries(store Store, logger zerolog.Logger) *Queries {
	return &Queries{
		store:  store,
		logger: logger.With().Str("component", "usage_queries").Logger(),
	}
}

// History returns snapshots for a license and metric within [start, end],
// ordered ascending by time.
func (q *Queries) History(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, start, end time.Time) ([]*models.UsageSnapshot, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric type %q", metric)
	}
	snapshots, err := q.store.GetSnapshotsInRange(ctx, licenseID, metric, start, end)
	if err != nil {
		return nil, fmt.Errorf("get snapshots in range: %w", err)
	}
	return snapshots, nil
}

// Analytics returns the latest utilization percentage per metric type,
// covering the full closed metric set with 0 for metrics without snapshots.
func (q *Queries) Analytics(ctx context.Context, licenseID uuid.UUID) (map[models.MetricType]float64, error) {
	result := make(map[models.MetricType]float64, len(models.AllMetricTypes()))
	for _, metric := range models.AllMetricTypes() {
		result[metric] = 0
		latest, err := q.store.GetLatestSnapshot(ctx, licenseID, metric)
		if err != nil {
			return nil, fmt.Errorf("get latest %s snapshot: %w", metric, err)
		}
		if latest != nil {
			result[metric] = latest.UtilizationPct
		}
	}
	return result, nil
}

// Events returns usage events for a license ordered descending by time.
// start and end are optional bounds.
func (q *Queries) Events(ctx context.Context, licenseID uuid.UUID, start, end *time.Time) ([]*models.UsageEvent, error) {
	events, err := q.store.GetUsageEvents(ctx, licenseID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get usage events: %w", err)
	}
	return events, nil
}

// Consolidated builds a multi-metric report for one license from the most
// recent snapshot of each metric type. Metrics without snapshots are absent.
func (q *Queries) Consolidated(ctx context.Context, licenseID uuid.UUID) (*ConsolidatedReport, error) {
	report := &ConsolidatedReport{
		LicenseID:   licenseID,
		Utilization: make(map[models.MetricType]*MetricReport),
		Timestamp:   time.Now(),
	}

	for _, metric := range models.AllMetricTypes() {
		latest, err := q.store.GetLatestSnapshot(ctx, licenseID, metric)
		if err != nil {
			return nil, fmt.Errorf("get latest %s snapshot: %w", metric, err)
		}
		if latest == nil {
			continue
		}
		report.Utilization[metric] = &MetricReport{
			CurrentValue:   latest.CurrentValue,
			Limit:          latest.LimitValue,
			UtilizationPct: latest.UtilizationPct,
			LastUpdated:    latest.CreatedAt,
			Metadata:       latest.Metadata,
		}
	}

	return report, nil
}

// ConsolidatedAll builds a consolidated report for every license present in
// the snapshot store. Snapshots for licenses that no longer exist are reported
// as-is; reconciliation is an external concern.
func (q *Queries) ConsolidatedAll(ctx context.Context) (map[uuid.UUID]*ConsolidatedReport, error) {
	ids, err := q.store.GetDistinctLicenseIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("get distinct license ids: %w", err)
	}

	reports := make(map[uuid.UUID]*ConsolidatedReport, len(ids))
	for _, id := range ids {
		report, err := q.Consolidated(ctx, id)
		if err != nil {
			q.logger.Error().Err(err).
				Str("license_id", id.String()).
				Msg("failed to build consolidated report")
			continue
		}
		reports[id] = report
	}
	return reports, nil
}

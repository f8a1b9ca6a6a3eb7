package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quotientlabs/quotient/internal/models"
)

// SaveSnapshot persists a usage snapshot.
func (db *DB) SaveSnapshot(ctx context.Context, snapshot *models.UsageSnapshot) error {
	var metadata []byte
	if snapshot.Metadata != nil {
		encoded, err := json.Marshal(snapshot.Metadata)
		if err != nil {
			return fmt.Errorf("encode snapshot metadata: %w", err)
		}
		metadata = encoded
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO usage_snapshots (
			id, license_id, metric_type, current_value, limit_value,
			utilization_pct, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, snapshot.ID, snapshot.LicenseID, string(snapshot.MetricType),
		snapshot.CurrentValue, snapshot.LimitValue, snapshot.UtilizationPct,
		metadata, snapshot.CreatedAt)

	if err != nil {
		return fmt.Errorf("save usage snapshot: %w", err)
	}
	return nil
}

// GetLatestSnapshot returns the most recent snapshot for a license and metric.
// Returns (nil, nil) when no snapshot exists.
func (db *DB) GetLatestSnapshot(ctx context.Context, licenseID uuid.UUID, metric models.MetricType) (*models.UsageSnapshot, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, license_id, metric_type, current_value, limit_value,
		       utilization_pct, metadata, created_at
		FROM usage_snapshots
		WHERE license_id = $1 AND metric_type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, licenseID, string(metric))

	snapshot, err := scanSnapshot(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snapshot, nil
}

// GetSnapshotsInRange returns snapshots for a license and metric within
// [start, end], ordered ascending by creation time.
func (db *DB) GetSnapshotsInRange(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, start, end time.Time) ([]*models.UsageSnapshot, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, license_id, metric_type, current_value, limit_value,
		       utilization_pct, metadata, created_at
		FROM usage_snapshots
		WHERE license_id = $1 AND metric_type = $2
		  AND created_at >= $3 AND created_at <= $4
		ORDER BY created_at ASC
	`, licenseID, string(metric), start, end)
	if err != nil {
		return nil, fmt.Errorf("get snapshots in range: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.UsageSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

// GetDistinctLicenseIDs returns the distinct license identifiers present in
// the snapshot store, including licenses that no longer exist.
func (db *DB) GetDistinctLicenseIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx, `SELECT DISTINCT license_id FROM usage_snapshots`)
	if err != nil {
		return nil, fmt.Errorf("get distinct license ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan license id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteSnapshotsBefore removes snapshots created before the cutoff and
// returns the number deleted.
func (db *DB) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM usage_snapshots WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SaveUsageEvent persists a usage event record.
func (db *DB) SaveUsageEvent(ctx context.Context, event *models.UsageEvent) error {
	var details []byte
	if event.Details != nil {
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("encode event details: %w", err)
		}
		details = encoded
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO usage_events (
			id, license_id, event_type, details, actor_id, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.LicenseID, string(event.EventType), details,
		event.ActorID, event.IPAddress, event.UserAgent, event.CreatedAt)

	if err != nil {
		return fmt.Errorf("save usage event: %w", err)
	}
	return nil
}

// GetUsageEvents returns usage events for a license ordered descending by
// creation time. start and end are optional bounds.
func (db *DB) GetUsageEvents(ctx context.Context, licenseID uuid.UUID, start, end *time.Time) ([]*models.UsageEvent, error) {
	query := `
		SELECT id, license_id, event_type, details, actor_id, ip_address, user_agent, created_at
		FROM usage_events
		WHERE license_id = $1`
	args := []any{licenseID}

	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get usage events: %w", err)
	}
	defer rows.Close()

	var events []*models.UsageEvent
	for rows.Next() {
		var event models.UsageEvent
		var eventType string
		var details []byte
		if err := rows.Scan(&event.ID, &event.LicenseID, &eventType, &details,
			&event.ActorID, &event.IPAddress, &event.UserAgent, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		event.EventType = models.UsageEventType(eventType)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("decode event details: %w", err)
			}
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

func scanSnapshot(row pgx.Row) (*models.UsageSnapshot, error) {
	var snapshot models.UsageSnapshot
	var metric string
	var metadata []byte
	err := row.Scan(&snapshot.ID, &snapshot.LicenseID, &metric,
		&snapshot.CurrentValue, &snapshot.LimitValue, &snapshot.UtilizationPct,
		&metadata, &snapshot.CreatedAt)
	if err != nil {
		return nil, err
	}
	snapshot.MetricType = models.MetricType(metric)
	if len(metadata) > 0 {
		var stats models.APICallStats
		if err := json.Unmarshal(metadata, &stats); err != nil {
			return nil, fmt.Errorf("decode snapshot metadata: %w", err)
		}
		snapshot.Metadata = &stats
	}
	return &snapshot, nil
}

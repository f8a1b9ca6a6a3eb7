package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quotientlabs/quotient/internal/models"
)

// CreateLicense inserts a new license record.
func (db *DB) CreateLicense(ctx context.Context, lic *models.License) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO licenses (
			id, tenant_name, plan, status,
			max_users, max_branches, max_storage_bytes, max_api_calls, max_integrations,
			expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, lic.ID, lic.TenantName, lic.Plan, string(lic.Status),
		lic.MaxUsers, lic.MaxBranches, lic.MaxStorageBytes, lic.MaxAPICalls, lic.MaxIntegrations,
		lic.ExpiresAt, lic.CreatedAt, lic.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create license: %w", err)
	}
	return nil
}

// GetLicense returns the license with the given ID.
func (db *DB) GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_name, plan, status,
		       max_users, max_branches, max_storage_bytes, max_api_calls, max_integrations,
		       expires_at, created_at, updated_at
		FROM licenses
		WHERE id = $1
	`, id)

	lic, err := scanLicense(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("license %s not found", id)
		}
		return nil, fmt.Errorf("get license: %w", err)
	}
	return lic, nil
}

// ListLicenses returns all license records ordered by creation time.
func (db *DB) ListLicenses(ctx context.Context) ([]*models.License, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_name, plan, status,
		       max_users, max_branches, max_storage_bytes, max_api_calls, max_integrations,
		       expires_at, created_at, updated_at
		FROM licenses
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*models.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}

// UpdateLicense updates a license's plan, status and limits.
func (db *DB) UpdateLicense(ctx context.Context, lic *models.License) error {
	lic.UpdatedAt = time.Now()
	tag, err := db.Pool.Exec(ctx, `
		UPDATE licenses
		SET plan = $2, status = $3,
		    max_users = $4, max_branches = $5, max_storage_bytes = $6,
		    max_api_calls = $7, max_integrations = $8,
		    expires_at = $9, updated_at = $10
		WHERE id = $1
	`, lic.ID, lic.Plan, string(lic.Status),
		lic.MaxUsers, lic.MaxBranches, lic.MaxStorageBytes,
		lic.MaxAPICalls, lic.MaxIntegrations,
		lic.ExpiresAt, lic.UpdatedAt)

	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("license %s not found", lic.ID)
	}
	return nil
}

func scanLicense(row pgx.Row) (*models.License, error) {
	var lic models.License
	var status string
	err := row.Scan(
		&lic.ID, &lic.TenantName, &lic.Plan, &status,
		&lic.MaxUsers, &lic.MaxBranches, &lic.MaxStorageBytes, &lic.MaxAPICalls, &lic.MaxIntegrations,
		&lic.ExpiresAt, &lic.CreatedAt, &lic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lic.Status = models.LicenseStatus(status)
	return &lic, nil
}

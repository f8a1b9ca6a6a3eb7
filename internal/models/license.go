// Package models defines the domain models for Quotient.
package models

import (
	"time"

	"github.com/google/uuid"
)

// MetricType identifies a metered resource on a license.
type MetricType string

const (
	MetricUsers        MetricType = "users"
	MetricBranches     MetricType = "branches"
	MetricStorage      MetricType = "storage"
	MetricAPICalls     MetricType = "api_calls"
	MetricIntegrations MetricType = "integrations"
)

// AllMetricTypes returns every metric type in a stable order.
func AllMetricTypes() []MetricType {
	return []MetricType{MetricUsers, MetricBranches, MetricStorage, MetricAPICalls, MetricIntegrations}
}

// Valid reports whether the metric type is one of the known set.
func (m MetricType) Valid() bool {
	switch m {
	case MetricUsers, MetricBranches, MetricStorage, MetricAPICalls, MetricIntegrations:
		return true
	}
	return false
}

// LicenseStatus represents the lifecycle state of a license.
type LicenseStatus string

const (
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusExpired   LicenseStatus = "expired"
)

// License represents a tenant's subscription record with per-metric quota limits.
// A limit of zero means "not configured"; consumers must substitute a default
// rather than divide by it.
type License struct {
	ID         uuid.UUID     `json:"id"`
	TenantName string        `json:"tenant_name"`
	Plan       string        `json:"plan"`
	Status     LicenseStatus `json:"status"`

	MaxUsers        int64 `json:"max_users"`
	MaxBranches     int64 `json:"max_branches"`
	MaxStorageBytes int64 `json:"max_storage_bytes"`
	MaxAPICalls     int64 `json:"max_api_calls"`
	MaxIntegrations int64 `json:"max_integrations"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewLicense creates a new active License for a tenant.
func NewLicense(tenantName, plan string) *License {
	now := time.Now()
	return &License{
		ID:         uuid.New(),
		TenantName: tenantName,
		Plan:       plan,
		Status:     LicenseStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// LimitFor returns the configured limit for a metric type as stored on the
// license. Zero or negative values mean "not configured".
func (l *License) LimitFor(metric MetricType) int64 {
	switch metric {
	case MetricUsers:
		return l.MaxUsers
	case MetricBranches:
		return l.MaxBranches
	case MetricStorage:
		return l.MaxStorageBytes
	case MetricAPICalls:
		return l.MaxAPICalls
	case MetricIntegrations:
		return l.MaxIntegrations
	}
	return 0
}

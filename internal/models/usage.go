package models

import (
	"time"

	"github.com/google/uuid"
)

// APICallRecord is one captured request on the high-frequency metering path.
// Records live only inside the in-memory buffer until they are aggregated into
// a UsageSnapshot; they are never persisted individually.
type APICallRecord struct {
	Endpoint   string    `json:"endpoint"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	DurationMs int64     `json:"duration_ms"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Country    string    `json:"country,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// PerformanceStats summarizes response times and errors for one flushed batch.
// The percentile is computed over the latest batch only, not cumulatively.
type PerformanceStats struct {
	AvgResponseMs float64 `json:"avg_response_ms"`
	MinResponseMs int64   `json:"min_response_ms"`
	MaxResponseMs int64   `json:"max_response_ms"`
	P95ResponseMs int64   `json:"p95_response_ms"`
	ErrorRate     float64 `json:"error_rate"`
}

// APICallStats is the aggregated metadata carried on an api_calls snapshot.
// Count maps accumulate across flushes by key-sum; Performance covers only the
// most recently flushed batch.
type APICallStats struct {
	Endpoints   map[string]int64 `json:"endpoints,omitempty"`
	Methods     map[string]int64 `json:"methods,omitempty"`
	StatusCodes map[string]int64 `json:"status_codes,omitempty"`
	UserAgents  map[string]int64 `json:"user_agents,omitempty"`
	Countries   map[string]int64 `json:"countries,omitempty"`

	Performance PerformanceStats `json:"performance"`

	// Time distributions built from event timestamps.
	Hourly  [24]int64 `json:"hourly"`
	Daily   [7]int64  `json:"daily"`
	Monthly [12]int64 `json:"monthly"`
}

// NewAPICallStats creates an APICallStats with initialized count maps.
func NewAPICallStats() *APICallStats {
	return &APICallStats{
		Endpoints:   make(map[string]int64),
		Methods:     make(map[string]int64),
		StatusCodes: make(map[string]int64),
		UserAgents:  make(map[string]int64),
		Countries:   make(map[string]int64),
	}
}

// UsageSnapshot is a persisted, timestamped statistical summary of one metric's
// usage for one license. Utilization is always finite and non-negative: a
// snapshot is never built against a zero or negative limit.
type UsageSnapshot struct {
	ID             uuid.UUID     `json:"id"`
	LicenseID      uuid.UUID     `json:"license_id"`
	MetricType     MetricType    `json:"metric_type"`
	CurrentValue   int64         `json:"current_value"`
	LimitValue     int64         `json:"limit_value"`
	UtilizationPct float64       `json:"utilization_pct"`
	Metadata       *APICallStats `json:"metadata,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// NewUsageSnapshot creates a UsageSnapshot for a license and metric.
func NewUsageSnapshot(licenseID uuid.UUID, metric MetricType, current, limit int64, utilizationPct float64) *UsageSnapshot {
	return &UsageSnapshot{
		ID:             uuid.New(),
		LicenseID:      licenseID,
		MetricType:     metric,
		CurrentValue:   current,
		LimitValue:     limit,
		UtilizationPct: utilizationPct,
		CreatedAt:      time.Now(),
	}
}

// Package licensing provides license limit resolution and bounded-latency
// license context lookup for the metering core.
package licensing

import (
	"github.com/quotientlabs/quotient/internal/models"
)

// defaultLimits maps each metric type to its fallback limit, used whenever a
// license has no usable configured value for that metric.
var defaultLimits = map[models.MetricType]int64{
	models.MetricUsers:        50,
	models.MetricBranches:     10,
	models.MetricStorage:      10 * 1024 * 1024 * 1024, // 10 GiB
	models.MetricAPICalls:     10000,
	models.MetricIntegrations: 5,
}

// DefaultLimit returns the fallback limit for the given metric type.
// Returns the api_calls fallback for unrecognized metrics.
func DefaultLimit(metric models.MetricType) int64 {
	limit, ok := defaultLimits[metric]
	if !ok {
		return defaultLimits[models.MetricAPICalls]
	}
	return limit
}

// ResolveLimit returns the limit to meter against for a license and metric.
// A nil license, a missing configured value, or a non-positive configured value
// all fall back to the metric's default. The result is always positive, so
// utilization computed against it is always finite.
func ResolveLimit(lic *models.License, metric models.MetricType) int64 {
	if lic == nil {
		return DefaultLimit(metric)
	}
	limit := lic.LimitFor(metric)
	if limit <= 0 {
		return DefaultLimit(metric)
	}
	return limit
}

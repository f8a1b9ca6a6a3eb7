package metering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/models"
)

var (
	// ErrNoLicense indicates the evaluator was invoked without a usable
	// license identifier. Reported distinctly from "did not exceed" so
	// monitoring can alert on broken configuration.
	ErrNoLicense = errors.New("no usable license for limit evaluation")
	// ErrInvalidLimit indicates a non-positive limit reached the evaluator,
	// which fallback resolution should have prevented.
	ErrInvalidLimit = errors.New("invalid limit for evaluation")
)

// Evaluate compares current usage against the limit and records a
// LIMIT_EXCEEDED usage event when utilization reaches the alert threshold.
// It returns whether an event was recorded. Repeated crossings on successive
// flushes each produce an event; deduplication is a consumer concern.
func (s *Service) Evaluate(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, current, limit int64) (bool, error) {
	if licenseID == uuid.Nil {
		return false, ErrNoLicense
	}
	if limit <= 0 {
		return false, fmt.Errorf("%w: %d for metric %s", ErrInvalidLimit, limit, metric)
	}

	utilization := utilizationPct(current, limit)
	if utilization < s.config.AlertThresholdPct {
		return false, nil
	}

	event := models.NewUsageEvent(licenseID, models.UsageEventLimitExceeded, map[string]any{
		"metric_type":     string(metric),
		"current_value":   current,
		"limit":           limit,
		"utilization_pct": utilization,
		"timestamp":       time.Now().Format(time.RFC3339),
	})

	if err := s.store.SaveUsageEvent(ctx, event); err != nil {
		return false, fmt.Errorf("save limit exceeded event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.LimitExceededTotal.WithLabelValues(string(metric)).Inc()
	}

	s.logger.Warn().
		Str("license_id", licenseID.String()).
		Str("metric_type", string(metric)).
		Int64("current_value", current).
		Int64("limit", limit).
		Float64("utilization_pct", utilization).
		Msg("usage limit threshold crossed")

	return true, nil
}

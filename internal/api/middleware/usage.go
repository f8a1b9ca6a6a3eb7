package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/models"
	"github.com/rs/zerolog"
)

// LicenseIDHeader carries the tenant's license identifier on metered requests.
const LicenseIDHeader = "X-License-ID"

// MeterRecorder is the metering entry point used by the usage recorder.
type MeterRecorder interface {
	RecordUsage(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, amount int64, meta *models.APICallRecord) (bool, error)
}

// UsageRecorder returns a middleware that meters every handled request as one
// api_calls usage event. Metering is strictly best-effort: it runs after the
// response is written, off the request goroutine, and failures are logged and
// swallowed. A request without a parseable license header is not metered.
func UsageRecorder(recorder MeterRecorder, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "usage_recorder").Logger()

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		licenseID, err := uuid.Parse(c.GetHeader(LicenseIDHeader))
		if err != nil {
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		rec := &models.APICallRecord{
			Endpoint:   endpoint,
			Method:     c.Request.Method,
			StatusCode: c.Writer.Status(),
			DurationMs: time.Since(start).Milliseconds(),
			UserAgent:  c.Request.UserAgent(),
			IPAddress:  c.ClientIP(),
			Country:    c.GetHeader("CF-IPCountry"),
			Timestamp:  start,
		}

		go recordBestEffort(recorder, licenseID, rec, log)
	}
}

// recordBestEffort submits one usage increment, logging and swallowing every
// failure so metering can never surface an error to the metered request.
func recordBestEffort(recorder MeterRecorder, licenseID uuid.UUID, rec *models.APICallRecord, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := recorder.RecordUsage(ctx, licenseID, models.MetricAPICalls, 1, rec); err != nil {
		log.Debug().Err(err).
			Str("license_id", licenseID.String()).
			Msg("usage recording failed")
	}
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/metering"
	"github.com/quotientlabs/quotient/internal/models"
	"github.com/rs/zerolog"
)

// UsageRecorder is the metering write path used by the usage handler.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, amount int64, meta *models.APICallRecord) (bool, error)
}

// UsageQueries is the metering read path used by the usage handler.
type UsageQueries interface {
	History(ctx context.Context, licenseID uuid.UUID, metric models.MetricType, start, end time.Time) ([]*models.UsageSnapshot, error)
	Analytics(ctx context.Context, licenseID uuid.UUID) (map[models.MetricType]float64, error)
	Events(ctx context.Context, licenseID uuid.UUID, start, end *time.Time) ([]*models.UsageEvent, error)
	Consolidated(ctx context.Context, licenseID uuid.UUID) (*metering.ConsolidatedReport, error)
	ConsolidatedAll(ctx context.Context) (map[uuid.UUID]*metering.ConsolidatedReport, error)
}

// UsageHandler handles usage submission and reporting endpoints.
type UsageHandler struct {
	recorder UsageRecorder
	queries  UsageQueries
	logger   zerolog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(recorder UsageRecorder, queries UsageQueries, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		recorder: recorder,
		queries:  queries,
		logger:   logger.With().Str("component", "usage_handler").Logger(),
	}
}

// RegisterRoutes registers usage routes on the given router group.
func (h *UsageHandler) RegisterRoutes(r *gin.RouterGroup) {
	licenses := r.Group("/licenses/:id/usage")
	{
		licenses.POST("", h.Record)
		licenses.GET("/history", h.History)
		licenses.GET("/analytics", h.Analytics)
		licenses.GET("/events", h.Events)
		licenses.GET("/consolidated", h.Consolidated)
	}

	r.GET("/usage/consolidated", h.ConsolidatedAll)
}

type recordUsageRequest struct {
	MetricType models.MetricType `json:"metric_type" binding:"required"`
	Amount     int64             `json:"amount"`
}

// Record submits a point-in-time usage value for a metric.
// POST /api/v1/licenses/:id/usage
func (h *UsageHandler) Record(c *gin.Context) {
	licenseID, ok := parseLicenseID(c)
	if !ok {
		return
	}

	var req recordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if !req.MetricType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric type"})
		return
	}

	flushed, err := h.recorder.RecordUsage(c.Request.Context(), licenseID, req.MetricType, req.Amount, nil)
	if err != nil {
		h.logger.Error().Err(err).
			Str("license_id", licenseID.String()).
			Str("metric_type", string(req.MetricType)).
			Msg("failed to record usage")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record usage"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"flushed": flushed})
}

// History returns usage snapshots for a metric within a time range.
// GET /api/v1/licenses/:id/usage/history?metric_type=api_calls&start=...&end=...
func (h *UsageHandler) History(c *gin.Context) {
	licenseID, ok := parseLicenseID(c)
	if !ok {
		return
	}

	metric := models.MetricType(c.Query("metric_type"))
	if !metric.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown metric type"})
		return
	}

	end := time.Now()
	start := end.AddDate(0, -1, 0)
	if v := c.Query("start"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start time"})
			return
		}
		start = parsed
	}
	if v := c.Query("end"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end time"})
			return
		}
		end = parsed
	}

	snapshots, err := h.queries.History(c.Request.Context(), licenseID, metric, start, end)
	if err != nil {
		h.logger.Error().Err(err).Str("license_id", licenseID.String()).Msg("failed to get usage history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get usage history"})
		return
	}

	if snapshots == nil {
		snapshots = []*models.UsageSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// Analytics returns the latest utilization per metric type.
// GET /api/v1/licenses/:id/usage/analytics
func (h *UsageHandler) Analytics(c *gin.Context) {
	licenseID, ok := parseLicenseID(c)
	if !ok {
		return
	}

	analytics, err := h.queries.Analytics(c.Request.Context(), licenseID)
	if err != nil {
		h.logger.Error().Err(err).Str("license_id", licenseID.String()).Msg("failed to get usage analytics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get usage analytics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"analytics": analytics})
}

// Events returns audit usage events for a license, newest first.
// GET /api/v1/licenses/:id/usage/events?start=...&end=...
func (h *UsageHandler) Events(c *gin.Context) {
	licenseID, ok := parseLicenseID(c)
	if !ok {
		return
	}

	var start, end *time.Time
	if v := c.Query("start"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start time"})
			return
		}
		start = &parsed
	}
	if v := c.Query("end"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end time"})
			return
		}
		end = &parsed
	}

	events, err := h.queries.Events(c.Request.Context(), licenseID, start, end)
	if err != nil {
		h.logger.Error().Err(err).Str("license_id", licenseID.String()).Msg("failed to get usage events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get usage events"})
		return
	}

	if events == nil {
		events = []*models.UsageEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Consolidated returns the multi-metric usage report for one license.
// GET /api/v1/licenses/:id/usage/consolidated
func (h *UsageHandler) Consolidated(c *gin.Context) {
	licenseID, ok := parseLicenseID(c)
	if !ok {
		return
	}

	report, err := h.queries.Consolidated(c.Request.Context(), licenseID)
	if err != nil {
		h.logger.Error().Err(err).Str("license_id", licenseID.String()).Msg("failed to build consolidated report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build consolidated report"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// ConsolidatedAll returns consolidated reports for every license with
// persisted snapshots.
// GET /api/v1/usage/consolidated
func (h *UsageHandler) ConsolidatedAll(c *gin.Context) {
	reports, err := h.queries.ConsolidatedAll(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build consolidated reports")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build consolidated reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// parseLicenseID extracts the license UUID from the path, writing a 400
// response when it is invalid.
func parseLicenseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid license ID"})
		return uuid.Nil, false
	}
	return id, true
}

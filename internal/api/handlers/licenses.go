// Package handlers implements the HTTP handlers for the Quotient API.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/models"
	"github.com/rs/zerolog"
)

// LicenseStore defines the interface for license persistence operations.
type LicenseStore interface {
	CreateLicense(ctx context.Context, lic *models.License) error
	GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error)
	ListLicenses(ctx context.Context) ([]*models.License, error)
	UpdateLicense(ctx context.Context, lic *models.License) error
	SaveUsageEvent(ctx context.Context, event *models.UsageEvent) error
}

// CacheInvalidator drops cached license context after an update.
type CacheInvalidator interface {
	Invalidate(id uuid.UUID)
}

// LicensesHandler handles license management endpoints for the
// tenant-management collaborator.
type LicensesHandler struct {
	store       LicenseStore
	invalidator CacheInvalidator
	logger      zerolog.Logger
}

// NewLicensesHandler creates a new LicensesHandler. invalidator may be nil.
func NewLicensesHandler(store LicenseStore, invalidator CacheInvalidator, logger zerolog.Logger) *LicensesHandler {
	return &LicensesHandler{
		store:       store,
		invalidator: invalidator,
		logger:      logger.With().Str("component", "licenses_handler").Logger(),
	}
}

// RegisterRoutes registers license routes on the given router group.
func (h *LicensesHandler) RegisterRoutes(r *gin.RouterGroup) {
	licenses := r.Group("/licenses")
	{
		licenses.GET("", h.List)
		licenses.POST("", h.Create)
		licenses.GET("/:id", h.Get)
		licenses.PUT("/:id", h.Update)
	}
}

type createLicenseRequest struct {
	TenantName      string     `json:"tenant_name" binding:"required"`
	Plan            string     `json:"plan"`
	MaxUsers        int64      `json:"max_users"`
	MaxBranches     int64      `json:"max_branches"`
	MaxStorageBytes int64      `json:"max_storage_bytes"`
	MaxAPICalls     int64      `json:"max_api_calls"`
	MaxIntegrations int64      `json:"max_integrations"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

type updateLicenseRequest struct {
	Plan            *string               `json:"plan"`
	Status          *models.LicenseStatus `json:"status"`
	MaxUsers        *int64                `json:"max_users"`
	MaxBranches     *int64                `json:"max_branches"`
	MaxStorageBytes *int64                `json:"max_storage_bytes"`
	MaxAPICalls     *int64                `json:"max_api_calls"`
	MaxIntegrations *int64                `json:"max_integrations"`
	ExpiresAt       *time.Time            `json:"expires_at"`
}

// List returns all licenses.
// GET /api/v1/licenses
func (h *LicensesHandler) List(c *gin.Context) {
	licenses, err := h.store.ListLicenses(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list licenses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list licenses"})
		return
	}

	if licenses == nil {
		licenses = []*models.License{}
	}
	c.JSON(http.StatusOK, gin.H{"licenses": licenses})
}

// Create creates a new license and records a CREATED usage event.
// POST /api/v1/licenses
func (h *LicensesHandler) Create(c *gin.Context) {
	var req createLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if req.Plan == "" {
		req.Plan = "free"
	}

	lic := models.NewLicense(req.TenantName, req.Plan)
	lic.MaxUsers = req.MaxUsers
	lic.MaxBranches = req.MaxBranches
	lic.MaxStorageBytes = req.MaxStorageBytes
	lic.MaxAPICalls = req.MaxAPICalls
	lic.MaxIntegrations = req.MaxIntegrations
	lic.ExpiresAt = req.ExpiresAt

	if err := h.store.CreateLicense(c.Request.Context(), lic); err != nil {
		h.logger.Error().Err(err).Str("tenant", req.TenantName).Msg("failed to create license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create license"})
		return
	}

	h.recordEvent(c, lic.ID, models.UsageEventCreated, map[string]any{
		"tenant_name": lic.TenantName,
		"plan":        lic.Plan,
	})

	c.JSON(http.StatusCreated, lic)
}

// Get returns one license by ID.
// GET /api/v1/licenses/:id
func (h *LicensesHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid license ID"})
		return
	}

	lic, err := h.store.GetLicense(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "license not found"})
		return
	}

	c.JSON(http.StatusOK, lic)
}

// Update modifies a license's plan, status, or limits. Status and plan changes
// record the corresponding usage event.
// PUT /api/v1/licenses/:id
func (h *LicensesHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid license ID"})
		return
	}

	var req updateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	lic, err := h.store.GetLicense(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "license not found"})
		return
	}

	var events []models.UsageEventType
	if req.Status != nil && *req.Status != lic.Status {
		switch *req.Status {
		case models.LicenseStatusSuspended:
			events = append(events, models.UsageEventSuspended)
		case models.LicenseStatusActive:
			events = append(events, models.UsageEventActivated)
		case models.LicenseStatusExpired:
			events = append(events, models.UsageEventExpired)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		lic.Status = *req.Status
	}
	if req.Plan != nil && *req.Plan != lic.Plan {
		events = append(events, models.UsageEventPlanChanged)
		lic.Plan = *req.Plan
	}
	if req.ExpiresAt != nil {
		if lic.ExpiresAt == nil || req.ExpiresAt.After(*lic.ExpiresAt) {
			events = append(events, models.UsageEventRenewed)
		}
		lic.ExpiresAt = req.ExpiresAt
	}
	if req.MaxUsers != nil {
		lic.MaxUsers = *req.MaxUsers
	}
	if req.MaxBranches != nil {
		lic.MaxBranches = *req.MaxBranches
	}
	if req.MaxStorageBytes != nil {
		lic.MaxStorageBytes = *req.MaxStorageBytes
	}
	if req.MaxAPICalls != nil {
		lic.MaxAPICalls = *req.MaxAPICalls
	}
	if req.MaxIntegrations != nil {
		lic.MaxIntegrations = *req.MaxIntegrations
	}

	if err := h.store.UpdateLicense(c.Request.Context(), lic); err != nil {
		h.logger.Error().Err(err).Str("license_id", id.String()).Msg("failed to update license")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update license"})
		return
	}

	if h.invalidator != nil {
		h.invalidator.Invalidate(id)
	}

	for _, eventType := range events {
		h.recordEvent(c, id, eventType, map[string]any{
			"plan":   lic.Plan,
			"status": string(lic.Status),
		})
	}

	c.JSON(http.StatusOK, lic)
}

// recordEvent writes an audit usage event, logging failures without failing
// the request that triggered it.
func (h *LicensesHandler) recordEvent(c *gin.Context, licenseID uuid.UUID, eventType models.UsageEventType, details map[string]any) {
	event := models.NewUsageEvent(licenseID, eventType, details)
	event.IPAddress = c.ClientIP()
	event.UserAgent = c.Request.UserAgent()

	if err := h.store.SaveUsageEvent(c.Request.Context(), event); err != nil {
		h.logger.Error().Err(err).
			Str("license_id", licenseID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to record usage event")
	}
}

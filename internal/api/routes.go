// Package api provides the HTTP API for the Quotient server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/quotientlabs/quotient/internal/api/handlers"
	"github.com/quotientlabs/quotient/internal/api/middleware"
	"github.com/quotientlabs/quotient/internal/config"
	"github.com/quotientlabs/quotient/internal/db"
	"github.com/quotientlabs/quotient/internal/licensing"
	"github.com/quotientlabs/quotient/internal/metering"
	"github.com/quotientlabs/quotient/internal/metrics"
	"github.com/rs/zerolog"
)

// Config holds configuration for the API router.
type Config struct {
	Environment config.Environment
	// AdminAPIKey protects the /api/v1 surface; empty disables auth.
	AdminAPIKey string
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m").
	RateLimitPeriod string
	// Version for the health endpoint.
	Version string
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(
	cfg Config,
	database *db.DB,
	meter *metering.Service,
	queries *metering.Queries,
	resolver *licensing.Resolver,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (*Router, error) {
	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Every request carrying a license header is metered as one api_calls
	// event, best-effort, after the response is written.
	r.Engine.Use(middleware.UsageRecorder(meter, logger))

	// Health and metrics endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(database, cfg.Version, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)
	r.Engine.GET("/metrics", gin.WrapH(m.Handler()))

	// API v1 routes (API key required)
	v1 := r.Engine.Group("/api/v1")
	v1.Use(middleware.APIKeyAuth(cfg.AdminAPIKey, logger))

	licensesHandler := handlers.NewLicensesHandler(database, resolver, logger)
	licensesHandler.RegisterRoutes(v1)

	usageHandler := handlers.NewUsageHandler(meter, queries, logger)
	usageHandler.RegisterRoutes(v1)

	return r, nil
}

// Package main is the entrypoint for the Quotient server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quotientlabs/quotient/internal/api"
	"github.com/quotientlabs/quotient/internal/config"
	"github.com/quotientlabs/quotient/internal/db"
	"github.com/quotientlabs/quotient/internal/licensing"
	"github.com/quotientlabs/quotient/internal/maintenance"
	"github.com/quotientlabs/quotient/internal/metering"
	"github.com/quotientlabs/quotient/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Quotient server")

	// Load configuration
	cfg := config.LoadServerConfig()

	if cfg.Environment == config.EnvProduction && cfg.AdminAPIKey == "" {
		logger.Fatal().Msg("ADMIN_API_KEY is required in production")
		return 1
	}

	// Connect to database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL environment variable is required")
		return 1
	}

	database, err := db.New(ctx, db.DefaultConfig(databaseURL), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Prometheus metrics
	m := metrics.New()

	// Shared license cache tier. Without REDIS_URL the resolver runs with the
	// process-local tier only.
	var shared licensing.SharedCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid REDIS_URL")
			return 1
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable at startup (continuing, shared cache degraded)")
		}
		defer client.Close()
		shared = licensing.NewRedisCache(client, os.Getenv("REDIS_KEY_PREFIX"))
		logger.Info().Msg("shared license cache enabled")
	} else {
		logger.Info().Msg("REDIS_URL not set, shared license cache disabled")
	}

	// License context resolver
	resolverCfg := licensing.DefaultResolverConfig()
	resolverCfg.LocalTTL = cfg.LocalCacheTTL
	resolverCfg.SharedTTL = cfg.SharedCacheTTL
	resolverCfg.LookupTimeout = cfg.LookupTimeout
	resolver := licensing.NewResolver(database, shared, resolverCfg, m, logger)

	// Metering service
	meterCfg := metering.Config{
		FlushInterval:     cfg.FlushInterval,
		VolumeThreshold:   cfg.VolumeThreshold,
		AlertThresholdPct: cfg.AlertThresholdPct,
	}
	meter := metering.NewService(database, resolver, meterCfg, m, logger)
	meter.Start(ctx)
	defer meter.Stop()

	queries := metering.NewQueries(database, logger)

	// Build API router
	routerCfg := api.Config{
		Environment:       cfg.Environment,
		AdminAPIKey:       cfg.AdminAPIKey,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitPeriod:   cfg.RateLimitPeriod,
		Version:           Version,
	}

	router, err := api.NewRouter(routerCfg, database, meter, queries, resolver, m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize router")
		return 1
	}

	// Start HTTP server
	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		listenAddr = ":" + port
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", listenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Start retention cleanup scheduler
	retentionScheduler := maintenance.NewRetentionScheduler(database, cfg.RetentionDays, logger)
	if err := retentionScheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start retention scheduler")
	}
	defer retentionScheduler.Stop()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}

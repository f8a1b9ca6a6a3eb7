// Package config provides configuration management for Quotient.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment Environment

	// AdminAPIKey protects the /api/v1 surface. Required outside development.
	AdminAPIKey string

	// Metering tunables.
	FlushInterval     time.Duration // timer-driven flush period (default: 5m)
	VolumeThreshold   int           // buffer size triggering an immediate flush (default: 100)
	AlertThresholdPct float64       // utilization percentage raising limit events (default: 80)

	// License context cache tunables.
	LocalCacheTTL  time.Duration // process-local tier TTL (default: 5m)
	SharedCacheTTL time.Duration // shared tier TTL (default: 5m)
	LookupTimeout  time.Duration // primary-store lookup deadline (default: 2s)

	// RetentionDays is how long usage snapshots are kept (default: 365).
	RetentionDays int

	// Rate limiting for the HTTP API.
	RateLimitRequests int64
	RateLimitPeriod   string
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	volumeThreshold := getEnvInt("METERING_VOLUME_THRESHOLD", 100)
	if volumeThreshold <= 0 {
		volumeThreshold = 100
	}

	alertThreshold := getEnvFloat("METERING_ALERT_THRESHOLD_PCT", 80)
	if alertThreshold <= 0 || alertThreshold > 100 {
		alertThreshold = 80
	}

	retentionDays := getEnvInt("RETENTION_DAYS", 365)
	if retentionDays <= 0 {
		retentionDays = 365
	}

	rateLimitRequests := int64(getEnvInt("RATE_LIMIT_REQUESTS", 100))
	if rateLimitRequests <= 0 {
		rateLimitRequests = 100
	}

	rateLimitPeriod := os.Getenv("RATE_LIMIT_PERIOD")
	if rateLimitPeriod == "" {
		rateLimitPeriod = "1m"
	}

	return ServerConfig{
		Environment:       env,
		AdminAPIKey:       os.Getenv("ADMIN_API_KEY"),
		FlushInterval:     getEnvDuration("METERING_FLUSH_INTERVAL", 5*time.Minute),
		VolumeThreshold:   volumeThreshold,
		AlertThresholdPct: alertThreshold,
		LocalCacheTTL:     getEnvDuration("LICENSE_CACHE_LOCAL_TTL", 5*time.Minute),
		SharedCacheTTL:    getEnvDuration("LICENSE_CACHE_SHARED_TTL", 5*time.Minute),
		LookupTimeout:     getEnvDuration("LICENSE_LOOKUP_TIMEOUT", 2*time.Second),
		RetentionDays:     retentionDays,
		RateLimitRequests: rateLimitRequests,
		RateLimitPeriod:   rateLimitPeriod,
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvFloat reads a float from an environment variable, returning the default if unset or invalid.
func getEnvFloat(key string, defaultVal float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// getEnvDuration reads a duration string (e.g. "5m", "2s") from an environment
// variable, returning the default if unset, invalid, or non-positive.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"ENV", "ADMIN_API_KEY",
		"METERING_FLUSH_INTERVAL", "METERING_VOLUME_THRESHOLD", "METERING_ALERT_THRESHOLD_PCT",
		"LICENSE_CACHE_LOCAL_TTL", "LICENSE_CACHE_SHARED_TTL", "LICENSE_LOOKUP_TIMEOUT",
		"RETENTION_DAYS", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_PERIOD",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadServerConfig()

	if cfg.Environment != EnvDevelopment {
		t.Errorf("Environment = %q, want %q", cfg.Environment, EnvDevelopment)
	}
	if cfg.FlushInterval != 5*time.Minute {
		t.Errorf("FlushInterval = %v, want 5m", cfg.FlushInterval)
	}
	if cfg.VolumeThreshold != 100 {
		t.Errorf("VolumeThreshold = %d, want 100", cfg.VolumeThreshold)
	}
	if cfg.AlertThresholdPct != 80 {
		t.Errorf("AlertThresholdPct = %v, want 80", cfg.AlertThresholdPct)
	}
	if cfg.LocalCacheTTL != 5*time.Minute {
		t.Errorf("LocalCacheTTL = %v, want 5m", cfg.LocalCacheTTL)
	}
	if cfg.LookupTimeout != 2*time.Second {
		t.Errorf("LookupTimeout = %v, want 2s", cfg.LookupTimeout)
	}
	if cfg.RetentionDays != 365 {
		t.Errorf("RetentionDays = %d, want 365", cfg.RetentionDays)
	}
	if cfg.RateLimitRequests != 100 {
		t.Errorf("RateLimitRequests = %d, want 100", cfg.RateLimitRequests)
	}
	if cfg.RateLimitPeriod != "1m" {
		t.Errorf("RateLimitPeriod = %q, want 1m", cfg.RateLimitPeriod)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ADMIN_API_KEY", "secret")
	t.Setenv("METERING_FLUSH_INTERVAL", "30s")
	t.Setenv("METERING_VOLUME_THRESHOLD", "50")
	t.Setenv("METERING_ALERT_THRESHOLD_PCT", "90")
	t.Setenv("LICENSE_LOOKUP_TIMEOUT", "500ms")
	t.Setenv("RETENTION_DAYS", "30")
	t.Setenv("RATE_LIMIT_REQUESTS", "1000")
	t.Setenv("RATE_LIMIT_PERIOD", "10s")

	cfg := LoadServerConfig()

	if cfg.Environment != EnvProduction {
		t.Errorf("Environment = %q, want %q", cfg.Environment, EnvProduction)
	}
	if cfg.AdminAPIKey != "secret" {
		t.Errorf("AdminAPIKey = %q, want secret", cfg.AdminAPIKey)
	}
	if cfg.FlushInterval != 30*time.Second {
		t.Errorf("FlushInterval = %v, want 30s", cfg.FlushInterval)
	}
	if cfg.VolumeThreshold != 50 {
		t.Errorf("VolumeThreshold = %d, want 50", cfg.VolumeThreshold)
	}
	if cfg.AlertThresholdPct != 90 {
		t.Errorf("AlertThresholdPct = %v, want 90", cfg.AlertThresholdPct)
	}
	if cfg.LookupTimeout != 500*time.Millisecond {
		t.Errorf("LookupTimeout = %v, want 500ms", cfg.LookupTimeout)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.RetentionDays)
	}
	if cfg.RateLimitRequests != 1000 {
		t.Errorf("RateLimitRequests = %d, want 1000", cfg.RateLimitRequests)
	}
	if cfg.RateLimitPeriod != "10s" {
		t.Errorf("RateLimitPeriod = %q, want 10s", cfg.RateLimitPeriod)
	}
}

func TestLoadServerConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("ENV", "prod") // not a known environment name
	t.Setenv("METERING_FLUSH_INTERVAL", "not-a-duration")
	t.Setenv("METERING_VOLUME_THRESHOLD", "-5")
	t.Setenv("METERING_ALERT_THRESHOLD_PCT", "150")
	t.Setenv("RETENTION_DAYS", "0")
	t.Setenv("RATE_LIMIT_REQUESTS", "abc")

	cfg := LoadServerConfig()

	if cfg.Environment != EnvDevelopment {
		t.Errorf("Environment = %q, want fallback %q", cfg.Environment, EnvDevelopment)
	}
	if cfg.FlushInterval != 5*time.Minute {
		t.Errorf("FlushInterval = %v, want fallback 5m", cfg.FlushInterval)
	}
	if cfg.VolumeThreshold != 100 {
		t.Errorf("VolumeThreshold = %d, want fallback 100", cfg.VolumeThreshold)
	}
	if cfg.AlertThresholdPct != 80 {
		t.Errorf("AlertThresholdPct = %v, want fallback 80", cfg.AlertThresholdPct)
	}
	if cfg.RetentionDays != 365 {
		t.Errorf("RetentionDays = %d, want fallback 365", cfg.RetentionDays)
	}
	if cfg.RateLimitRequests != 100 {
		t.Errorf("RateLimitRequests = %d, want fallback 100", cfg.RateLimitRequests)
	}
}

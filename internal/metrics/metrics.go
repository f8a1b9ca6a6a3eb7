// Package metrics provides Prometheus metrics collection for Quotient.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the metering engine.
type Metrics struct {
	registry *prometheus.Registry

	// Buffering and flushing.
	UsageEnqueuedTotal prometheus.Counter
	FlushesTotal       *prometheus.CounterVec
	FlushErrorsTotal   prometheus.Counter
	FlushDuration      prometheus.Histogram
	BufferedEvents     prometheus.Gauge

	// License context cache.
	LicenseCacheHits   *prometheus.CounterVec
	LicenseCacheMisses prometheus.Counter

	// Limit evaluation.
	LimitExceededTotal *prometheus.CounterVec
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		UsageEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotient_usage_enqueued_total",
			Help: "Total number of raw usage events accepted into the buffer.",
		}),

		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotient_flushes_total",
			Help: "Total number of buffer flushes by trigger (volume or timer).",
		}, []string{"trigger"}),

		FlushErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotient_flush_errors_total",
			Help: "Total number of flushes that failed to persist.",
		}),

		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotient_flush_duration_seconds",
			Help:    "Time spent aggregating and persisting one buffer slot.",
			Buckets: prometheus.DefBuckets,
		}),

		BufferedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotient_buffered_events",
			Help: "Number of raw usage events currently held in buffer slots.",
		}),

		LicenseCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotient_license_cache_hits_total",
			Help: "License context cache hits by tier (local or shared).",
		}, []string{"tier"}),

		LicenseCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotient_license_cache_misses_total",
			Help: "License context lookups that fell through to the primary store.",
		}),

		LimitExceededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotient_limit_exceeded_total",
			Help: "Limit-exceeded events recorded, by metric type.",
		}, []string{"metric_type"}),
	}

	reg.MustRegister(
		m.UsageEnqueuedTotal,
		m.FlushesTotal,
		m.FlushErrorsTotal,
		m.FlushDuration,
		m.BufferedEvents,
		m.LicenseCacheHits,
		m.LicenseCacheMisses,
		m.LimitExceededTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns an HTTP handler exposing the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

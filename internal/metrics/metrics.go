// Package metrics registers the Prometheus metrics exported by the
// scheduling core. Import this package from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh cycle counters and histograms.
var (
	// RefreshCycles counts completed refresh cycles labelled by provider and
	// result ("success", "error", "skipped").
	RefreshCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_refresh_cycles_total",
			Help: "Total provider refresh cycles by result.",
		},
		[]string{"provider", "result"},
	)

	// RefreshDuration observes refresh cycle latency in seconds.
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_refresh_duration_seconds",
			Help:    "Provider refresh cycle duration in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// ScheduledRetries counts retries armed after failed cycles.
	ScheduledRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_scheduled_retries_total",
			Help: "Total retries scheduled after failed refresh cycles.",
		},
		[]string{"provider"},
	)

	// ProviderErrors counts errors broken down by provider and error type
	// ("provider_error", "circuit_open", "rate_limited", "invalid_catalog").
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_provider_errors_total",
			Help: "Total provider errors by type.",
		},
		[]string{"provider", "error_type"},
	)
)

// Reliability gauges.
var (
	// CircuitBreakerState tracks per-provider circuit breaker state as a gauge:
	// 0 = closed, 1 = open, 2 = half_open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed 1=open 2=half_open).",
		},
		[]string{"provider"},
	)

	// RateLimitRejections counts admissions denied by the rate limiter,
	// labelled by denial reason.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejections_total",
			Help: "Total admissions rejected by rate limiting.",
		},
		[]string{"provider", "reason"},
	)

	// RateLimitBackoff is the active adaptive backoff per provider in seconds.
	RateLimitBackoff = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_rate_limit_backoff_seconds",
			Help: "Current adaptive backoff delay per provider in seconds.",
		},
		[]string{"provider"},
	)

	// ProviderHealth tracks provider health: 1 = healthy, 0 = unhealthy or
	// error, -1 = unknown.
	ProviderHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_provider_health",
			Help: "Provider health (1=healthy 0=unhealthy -1=unknown).",
		},
		[]string{"provider"},
	)

	// ProbeDuration observes health probe latency in seconds.
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_probe_duration_seconds",
			Help:    "Provider health probe latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

// Catalog and notification metrics.
var (
	// CatalogModels is the number of models in each provider's snapshot.
	CatalogModels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_catalog_models",
			Help: "Models in the current catalog snapshot per provider.",
		},
		[]string{"provider"},
	)

	// CatalogChanges counts model-level changes by type ("added",
	// "removed", "modified").
	CatalogChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_catalog_changes_total",
			Help: "Total catalog changes detected by type.",
		},
		[]string{"provider", "type"},
	)

	// NotificationsTotal counts event deliveries per sink and result
	// ("delivered", "failed").
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_notifications_total",
			Help: "Total notification deliveries by sink and result.",
		},
		[]string{"sink", "event", "result"},
	)

	// MaintenanceRuns counts maintenance job runs by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_maintenance_runs_total",
			Help: "Total maintenance job runs by job and result.",
		},
		[]string{"job", "result"},
	)
)

// Forget drops every per-provider series of provider.
func Forget(provider string) {
	labels := prometheus.Labels{"provider": provider}
	RefreshCycles.DeletePartialMatch(labels)
	RefreshDuration.DeletePartialMatch(labels)
	ScheduledRetries.DeletePartialMatch(labels)
	ProviderErrors.DeletePartialMatch(labels)
	CircuitBreakerState.DeletePartialMatch(labels)
	RateLimitRejections.DeletePartialMatch(labels)
	RateLimitBackoff.DeletePartialMatch(labels)
	ProviderHealth.DeletePartialMatch(labels)
	ProbeDuration.DeletePartialMatch(labels)
	CatalogModels.DeletePartialMatch(labels)
	CatalogChanges.DeletePartialMatch(labels)
}

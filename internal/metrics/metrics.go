// Package metrics registers the Prometheus metrics used by the text-action
// service. Import this package (via blank import) from the server entry point
// to register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActionsTotal counts completed text actions labelled by action and
	// outcome ("success", "error", "blocked", "rejected").
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textact_actions_total",
			Help: "Total number of text actions processed.",
		},
		[]string{"action", "status"},
	)

	// ActionDuration observes end-to-end action latency in seconds.
	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textact_action_duration_seconds",
			Help:    "End-to-end action duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"action"},
	)

	// CacheHits counts prompt cache hits per action.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textact_prompt_cache_hits_total",
			Help: "Total prompt cache hits.",
		},
		[]string{"action"},
	)

	// CacheMisses counts prompt cache misses per action.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textact_prompt_cache_misses_total",
			Help: "Total prompt cache misses.",
		},
		[]string{"action"},
	)

	// ProviderErrors counts errors broken down by provider and error type
	// ("provider_error", "circuit_open", "rate_limited").
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textact_provider_errors_total",
			Help: "Total provider errors by type.",
		},
		[]string{"provider", "error_type"},
	)

	// TokensInput counts total prompt tokens sent to providers.
	TokensInput = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textact_tokens_input_total",
			Help: "Total prompt tokens sent to providers.",
		},
		[]string{"provider", "model"},
	)

	// TokensOutput counts total completion tokens received from providers.
	TokensOutput = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textact_tokens_output_total",
			Help: "Total completion tokens received from providers.",
		},
		[]string{"provider", "model"},
	)

	// StorageBytesInUse tracks the accounted aggregate size of the settings
	// storage backend.
	StorageBytesInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "textact_storage_bytes_in_use",
			Help: "Accounted aggregate size of the settings storage backend.",
		},
	)

	// StorageQuotaRejections counts writes rejected by the quota guard,
	// labelled by scope ("item", "total").
	StorageQuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textact_storage_quota_rejections_total",
			Help: "Total storage writes rejected by the quota guard.",
		},
		[]string{"scope"},
	)

	// CircuitBreakerState tracks per-provider circuit breaker state as a gauge:
	// 0 = closed, 1 = open, 2 = half_open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "textact_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed 1=open 2=half_open).",
		},
		[]string{"provider"},
	)
)

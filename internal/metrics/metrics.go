// Package metrics registers the Prometheus metrics used by the relay.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request-level counters and histograms.
var (
	// RequestsTotal counts completed chat requests labelled by outcome
	// ("hit", "miss", "rejected", "error").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of chat requests processed by the relay.",
		},
		[]string{"model", "outcome"},
	)

	// RequestDuration observes end-to-end chat request latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "End-to-end chat request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model", "outcome"},
	)

	// CacheHits counts responses served from the cache.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_cache_hits_total",
			Help: "Total chat requests answered from the response cache.",
		},
	)

	// CacheMisses counts requests that went to the inference provider.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_cache_misses_total",
			Help: "Total chat requests that required an inference call.",
		},
	)

	// CacheErrors counts cache operations that failed and were absorbed
	// (fail-open reads and best-effort writes), labelled by operation.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_cache_errors_total",
			Help: "Total cache store errors absorbed by the relay.",
		},
		[]string{"op"},
	)

	// InferenceRetries counts retry attempts against the inference provider
	// (the initial attempt is not counted).
	InferenceRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_inference_retries_total",
			Help: "Total inference call retries after transient failures.",
		},
	)

	// InferenceErrors counts terminal inference failures by error type
	// ("auth", "request", "unavailable").
	InferenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_inference_errors_total",
			Help: "Total terminal inference errors by type.",
		},
		[]string{"error_type"},
	)

	// CircuitBreakerState tracks the upstream circuit breaker state as a
	// gauge: 0 = closed, 1 = open, 2 = half_open.
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_circuit_breaker_state",
			Help: "Inference circuit breaker state (0=closed 1=open 2=half_open).",
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newscomb_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newscomb_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Feed retrieval metrics
	FeedFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newscomb_feed_fetches_total",
			Help: "Total number of feed retrievals by outcome",
		},
		[]string{"source", "status"},
	)

	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newscomb_feed_fetch_duration_seconds",
			Help:    "Feed retrieval duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newscomb_circuit_breaker_state",
			Help: "Per-source circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	// Cache metrics
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newscomb_cache_lookups_total",
			Help: "Total number of cache lookups by result",
		},
		[]string{"category", "result"},
	)

	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newscomb_cache_evictions_total",
			Help: "Total number of cache entries removed by expiry or invalidation",
		},
		[]string{"category", "reason"},
	)

	// Rate limiting metrics
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newscomb_rate_limit_decisions_total",
			Help: "Total number of rate limiter decisions",
		},
		[]string{"scope", "decision"},
	)

	RateLimitEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "newscomb_rate_limit_entries",
			Help: "Number of tracked caller windows",
		},
	)

	// Background task metrics
	TasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newscomb_tasks_processed_total",
			Help: "Total number of background tasks by outcome",
		},
		[]string{"type", "status"},
	)

	ArticlesPersistedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newscomb_articles_persisted_total",
			Help: "Total number of articles newly written to the article store",
		},
	)

	ApplicationInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newscomb_application_info",
			Help: "Application information",
		},
		[]string{"version"},
	)
)

func Init(version string) {
	ApplicationInfo.WithLabelValues(version).Set(1)
}

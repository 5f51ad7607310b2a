package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics, refreshed from Stats by the Collector
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of entries per cache",
		},
		[]string{"cache"},
	)

	CacheMaxEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_max_entries",
			Help: "Configured entry limit per cache (-1 when unbounded)",
		},
		[]string{"cache"},
	)

	// Hit/miss/set counters can be reset through the admin API, so they are
	// exported as gauges mirroring the cache's own counters.
	CacheOperations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_operations",
			Help: "Cache operation counters since the last stats reset",
		},
		[]string{"cache", "operation"}, // operation: hit, miss, set, delete, eviction
	)

	CacheHitRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Cache hit ratio between 0 and 1",
		},
		[]string{"cache"},
	)

	CacheBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_size_bytes",
			Help: "Approximate payload size of byte-bounded caches",
		},
		[]string{"cache"},
	)

	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_events_total",
			Help: "Total number of cache events by kind",
		},
		[]string{"cache", "kind"}, // kind: set, delete, clear, expired, evict, error
	)

	CacheSweepRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_sweep_removed_total",
			Help: "Total number of expired entries removed by background sweeps",
		},
	)

	// Jellyfin client metrics
	JellyfinHTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jellyfin_http_requests_total",
			Help: "Total number of HTTP requests made to the Jellyfin API",
		},
		[]string{"status"}, // status: success, retry, failure
	)

	JellyfinHTTPRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jellyfin_http_retries_total",
			Help: "Total number of Jellyfin HTTP request retries",
		},
	)

	JellyfinRetryAfterWaits = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jellyfin_retry_after_wait_seconds",
			Help:    "Duration of Retry-After waits in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	JellyfinRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jellyfin_request_duration_seconds",
			Help:    "Duration of Jellyfin API calls, including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15},
		},
		[]string{"endpoint"},
	)

	// Session store metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	DBOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)

	SessionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_pruned_total",
			Help: "Total number of expired sessions removed from the store",
		},
	)

	// Maintenance job metrics
	MaintenanceJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_job_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "status"}, // status: success, failed
	)

	MaintenanceJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maintenance_job_duration_seconds",
			Help:    "Duration of maintenance jobs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Response cache metrics
	APICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_hits_total",
			Help: "Total number of cached HTTP responses served",
		},
		[]string{"endpoint"},
	)

	APICacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_misses_total",
			Help: "Total number of HTTP responses not found in the response cache",
		},
		[]string{"endpoint"},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)
)

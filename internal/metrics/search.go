package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "assetsearch"

// Read path metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by mode and the backend that answered",
		},
		[]string{"mode", "source"}, // source: engine / fallback / cache / unavailable
	)

	SearchBackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_backend_duration_seconds",
			Help:      "Backend call duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1, 1.5, 2, 5},
		},
		[]string{"backend", "outcome"},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_total",
			Help:      "Cache hits and misses per tier",
		},
		[]string{"tier", "result"}, // "hit" / "miss"
	)

	RewriteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_requests_total",
			Help:      "Query rewrite requests by provider, model and status",
		},
		[]string{"provider", "model", "status"},
	)

	RewriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rewrite_request_duration_seconds",
			Help:      "Query rewrite request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"provider", "model"},
	)

	RewriteTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_tokens_total",
			Help:      "Tokens consumed by query rewriting",
		},
		[]string{"provider", "model"},
	)

	RewriteBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rewrite_budget_tokens_remaining",
			Help:      "Rewrite tokens left in the current period (-1 = unlimited)",
		},
		[]string{"provider", "period"}, // daily / monthly
	)

	RewriteCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_cache_total",
			Help:      "Rewrite cache hits and misses",
		},
		[]string{"result"},
	)

	ExperimentAssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "experiment_assignments_total",
			Help:      "Variant assignments served",
		},
		[]string{"experiment", "variant"},
	)
)

// Write path metrics.
var (
	SyncTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Sync task transitions by type and status",
		},
		[]string{"type", "status"},
	)

	SyncQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_depth",
			Help:      "Tasks waiting in the sync queue",
		},
		[]string{"state"}, // ready / delayed
	)

	SyncBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_batch_duration_seconds",
			Help:      "Sync batch processing time in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

var registered bool

// Register registers the service metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(
		SearchRequestsTotal,
		SearchBackendDuration,
		CacheTotal,
		RewriteRequestsTotal,
		RewriteDuration,
		RewriteTokensTotal,
		RewriteBudgetTokensRemaining,
		RewriteCacheTotal,
		ExperimentAssignmentsTotal,
		SyncTasksTotal,
		SyncQueueDepth,
		SyncBatchDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
		HTTPInFlight,
	)
	registered = true
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_viewer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_viewer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_viewer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_viewer_db_transaction_duration_seconds",
			Help:    "Duration of store sessions by outcome",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"result"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_viewer_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Library metrics
var (
	GalleriesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_viewer_galleries",
			Help: "Number of live galleries in memory by kind",
		},
		[]string{"kind"},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_viewer_event_subscribers",
			Help: "Number of active event stream subscribers",
		},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_viewer_events_dropped_total",
			Help: "Events dropped because a subscriber was not keeping up",
		},
	)
)

// Scan metrics
var (
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_scan_runs_total",
			Help: "Total number of scan runs by mode",
		},
		[]string{"mode"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_viewer_scan_duration_seconds",
			Help:    "Duration of scan runs by mode",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"mode"},
	)

	ScanCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_scan_candidates_total",
			Help: "Candidates handed to construction by mode",
		},
		[]string{"mode"},
	)

	ScanIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_viewer_scan_running",
			Help: "Whether a scan is currently running (1 = running)",
		},
	)

	ConstructionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_construction_errors_total",
			Help: "Gallery construction failures by kind",
		},
		[]string{"kind"},
	)
)

// Worker pool metrics
var (
	WorkerPoolTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_worker_pool_tasks_total",
			Help: "Tasks processed by worker pools",
		},
		[]string{"pool", "status"},
	)

	WorkerPoolTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_viewer_worker_pool_task_duration_seconds",
			Help:    "Duration of individual worker pool tasks",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"pool"},
	)

	WorkerPoolActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_viewer_worker_pool_active_workers",
			Help: "Workers currently running per pool",
		},
		[]string{"pool"},
	)
)

// Reconciliation and duplicate metrics
var (
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_reconcile_total",
			Help: "Reconciliation outcomes",
		},
		[]string{"result"},
	)

	DuplicateGroupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_viewer_duplicate_groups_total",
			Help: "Duplicate groups found",
		},
	)

	DuplicatesRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_viewer_duplicates_removed_total",
			Help: "Galleries removed by duplicate resolution",
		},
	)
)

// Metadata matching metrics
var (
	MatchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_match_attempts_total",
			Help: "Metadata match attempts by phase and result",
		},
		[]string{"phase", "result"},
	)

	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_remote_requests_total",
			Help: "Requests sent through the rate-limited fetch gate",
		},
		[]string{"service", "status"},
	)

	RemoteGateSleepSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_viewer_remote_gate_sleep_seconds",
			Help:    "Time spent waiting in the fetch gate before a request",
			Buckets: []float64{0, 0.5, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)

	RemoteBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_viewer_remote_breaker_state",
			Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
		[]string{"service"},
	)
)

// Thumbnail metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_thumbnail_generations_total",
			Help: "Thumbnail generations by status",
		},
		[]string{"status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallery_viewer_thumbnail_generation_duration_seconds",
			Help:    "Time to decode, resize and encode one thumbnail",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	ThumbnailsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_viewer_thumbnails_pruned_total",
			Help: "Orphan thumbnails removed",
		},
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a stale handle",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_filesystem_stale_errors_total",
			Help: "ESTALE errors seen on network filesystems",
		},
		[]string{"operation"},
	)

	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_viewer_watcher_events_total",
			Help: "Filesystem notifications handled by operation",
		},
		[]string{"op"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_viewer_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_viewer_memory_paused",
			Help: "Whether image work is paused for memory pressure (1 = paused)",
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "background_picker_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_picker_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Ledger metrics
var (
	LedgerQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_ledger_queries_total",
			Help: "Total number of failure ledger queries",
		},
		[]string{"operation", "status"},
	)

	LedgerQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "background_picker_ledger_query_duration_seconds",
			Help:    "Failure ledger query duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	LedgerFailuresRecorded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_picker_ledger_failures",
			Help: "Number of source files currently recorded as undecodable",
		},
	)
)

// Thumbnail metrics
var (
	ThumbnailCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_thumbnail_cache_lookups_total",
			Help: "Total number of thumbnail cache lookups by result",
		},
		[]string{"class", "result"}, // "hit", "miss", "stale", "corrupt"
	)

	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"class", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "background_picker_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"class"},
	)

	ThumbnailGenerationDurationDetailed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "background_picker_thumbnail_phase_duration_seconds",
			Help:    "Thumbnail generation duration by phase",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"phase"}, // "decode", "resize", "encode", "store"
	)

	ThumbnailImageDecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_thumbnail_decode_total",
			Help: "Source images decoded by detected format",
		},
		[]string{"format"},
	)

	ThumbnailGenerationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_picker_thumbnail_generations_in_flight",
			Help: "Number of thumbnails currently being rendered",
		},
	)

	ThumbnailCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "background_picker_thumbnail_coalesced_total",
			Help: "Requests that shared an in-flight generation instead of rendering",
		},
	)

	ThumbnailStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_thumbnail_store_errors_total",
			Help: "Thumbnails that rendered but could not be persisted",
		},
		[]string{"class"},
	)

	ThumbnailKnownFailureSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "background_picker_thumbnail_known_failure_skips_total",
			Help: "Sources skipped because an unchanged copy failed to decode before",
		},
	)

	ThumbnailCacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "background_picker_thumbnail_cache_size_bytes",
			Help: "Size of the thumbnail cache in bytes",
		},
		[]string{"class"},
	)

	ThumbnailCacheCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "background_picker_thumbnail_cache_count",
			Help: "Number of cached thumbnails",
		},
		[]string{"class"},
	)
)

// Pregeneration metrics
var (
	PregenRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_pregen_runs_total",
			Help: "Total number of batch pregeneration runs",
		},
		[]string{"result"}, // "ok", "failed"
	)

	PregenLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_picker_pregen_last_run_duration_seconds",
			Help: "Duration of the last pregeneration run in seconds",
		},
	)

	PregenLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_picker_pregen_last_run_timestamp",
			Help: "Timestamp of the last pregeneration run",
		},
	)

	PregenFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "background_picker_pregen_files",
			Help: "Number of files in the last pregeneration run by status",
		},
		[]string{"status"}, // "cached", "generated", "failed"
	)
)

// Scanner metrics
var (
	ScannerFilesScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_scanner_files_scanned_total",
			Help: "Total number of directory entries examined by the scanner",
		},
		[]string{"result"}, // "image", "skipped"
	)

	ScannerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "background_picker_scanner_errors_total",
			Help: "Directories the scanner could not read",
		},
	)

	ScannerRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "background_picker_scanner_run_duration_seconds",
			Help:    "Duration of full directory tree scans",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	ScannerWatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_scanner_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	ScannerWatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "background_picker_scanner_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	ScannerWatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_picker_scanner_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "background_picker_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_filesystem_retry_attempts_total",
			Help: "Retries after NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_picker_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_picker_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "background_picker_memory_paused",
			Help: "Whether rendering is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "background_picker_memory_gc_pauses_total",
			Help: "Times rendering was paused for memory pressure",
		},
	)
)

// BackgroundSetTotal counts background command invocations.
var BackgroundSetTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_picker_background_set_total",
		Help: "Total number of background command invocations",
	},
	[]string{"status"},
)

// AppInfo carries build information as labels.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "background_picker_app_info",
		Help: "Application information",
	},
	[]string{"version", "commit", "go_version"},
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_renamer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_renamer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_renamer_db_transaction_duration_seconds",
			Help:    "Duration of write transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"result"}, // "commit" or "rollback"
	)

	DBWriteLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_renamer_db_write_lock_wait_seconds",
			Help:    "Time spent waiting for the write-serialization lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_renamer_db_rows_affected",
			Help:    "Rows affected by batch write operations",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_renamer_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	DBRecoveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_renamer_db_recoveries_total",
			Help: "Number of times a corrupt database was backed up and recreated",
		},
	)

	DBUnavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_db_unavailable_total",
			Help: "Operations that found the store closed or locked and degraded to a miss",
		},
		[]string{"operation"},
	)

	DBRecordsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_renamer_db_records",
			Help: "Number of rows per durable table",
		},
		[]string{"table"},
	)
)

// Tiered cache metrics
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_cache_hits_total",
			Help: "Total number of in-memory tier hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_cache_misses_total",
			Help: "Total number of in-memory tier misses",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_cache_evictions_total",
			Help: "Total number of entries evicted from an in-memory tier",
		},
		[]string{"cache"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_renamer_cache_entries",
			Help: "Current number of entries held by an in-memory tier",
		},
		[]string{"cache"},
	)
)

// Thumbnail metrics
var (
	ThumbnailCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_thumbnail_cache_hits_total",
			Help: "Total number of thumbnail artifact cache hits",
		},
		[]string{"level"}, // "memory" or "disk"
	)

	ThumbnailCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_renamer_thumbnail_cache_misses_total",
			Help: "Total number of thumbnail artifact cache misses",
		},
	)

	ThumbnailCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_thumbnail_cache_size_bytes",
			Help: "Total size of the on-disk thumbnail cache in bytes",
		},
	)

	ThumbnailCacheCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_thumbnail_cache_count",
			Help: "Number of thumbnails in the on-disk cache",
		},
	)

	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"type", "status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_renamer_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"type"},
	)

	ThumbnailRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_renamer_thumbnail_requests_total",
			Help: "Total number of thumbnail requests received by the pipeline",
		},
	)

	ThumbnailRequestsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_renamer_thumbnail_requests_merged_total",
			Help: "Requests attached to an identical pending request instead of queuing new work",
		},
	)

	ThumbnailQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_thumbnail_queue_depth",
			Help: "Number of thumbnail jobs waiting for a worker",
		},
	)

	ThumbnailInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_thumbnail_in_flight",
			Help: "Number of thumbnail jobs currently being generated",
		},
	)

	ThumbnailWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_thumbnail_workers",
			Help: "Number of thumbnail pipeline workers",
		},
	)

	ThumbnailFFmpegDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_renamer_thumbnail_ffmpeg_duration_seconds",
			Help:    "Duration of ffmpeg frame extraction in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// Hashing and metadata batch metrics
var (
	HashFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_hash_files_total",
			Help: "Files processed by the hash producer",
		},
		[]string{"algorithm", "status"}, // status: "hashed", "cached", "failed"
	)

	HashBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_hash_bytes_total",
			Help: "Bytes read by the hash producer",
		},
		[]string{"algorithm"},
	)

	MetadataExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_metadata_extractions_total",
			Help: "Metadata extraction attempts",
		},
		[]string{"extractor", "status"},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_renamer_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_filesystem_retry_attempts_total",
			Help: "Retry attempts after a stale file handle error",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_renamer_filesystem_stale_errors_total",
			Help: "Stale file handle errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_renamer_filesystem_retry_duration_seconds",
			Help:    "Total duration of retried filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_renamer_memory_paused",
			Help: "Whether thumbnail generation is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_renamer_memory_gc_pauses_total",
			Help: "Number of times processing was paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_renamer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

// Package metrics provides Prometheus instrumentation for the batch renamer
// cache service.
//
// All metrics are prefixed with "batch_renamer_" and registered through
// promauto on package initialization.
//
// # Metric Categories
//
// ## Database Metrics
//
// Query counts and durations by operation, write-transaction duration by
// result, time spent waiting for the write-serialization lock, database file
// sizes, row counts per table, corrupt-store recoveries, and operations that
// degraded to a miss because the store was closing.
//
// ## Tiered Cache Metrics
//
// Hits, misses, evictions and current entries of the in-memory tiers in front
// of the hash and metadata stores, labelled by cache name.
//
// ## Thumbnail Metrics
//
// Artifact cache hits by level (memory, disk) and misses, on-disk cache size,
// pipeline request, merge, queue depth and in-flight gauges, and generation
// counts and durations by media type and status.
//
// ## Batch Producer Metrics
//
// Files and bytes processed by the hash producer and metadata extraction
// attempts by extractor.
//
// ## Filesystem, Watcher and Memory Metrics
//
// Stale-handle retry counters, watcher events and errors, and memory
// pressure gauges used by the thumbnail workers.
//
// The Collector polls StatsProvider implementations (the database and the
// artifact cache) on an interval for values that are expensive to keep live.
package metrics

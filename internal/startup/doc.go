// Package startup handles configuration loading, directory setup, and
// startup/shutdown logging for the cache service.
//
// # Configuration
//
// [LoadConfig] layers, in increasing precedence: built-in defaults
// ([DefaultConfig]), an optional YAML file, .env files, and environment
// variables prefixed with BATCHRENAMER_. Nested keys use underscores, so
// thumbnails.workers is read from BATCHRENAMER_THUMBNAILS_WORKERS.
// The result is validated with struct tags before it is returned.
//
// Supported keys:
//
//   - database_dir, cache_dir, media_dir, port
//   - log.level, log.file, log.max_size_mb, log.max_backups, log.max_age_days
//   - database.mmap_disabled
//   - cache.hash_capacity, cache.metadata_capacity
//   - thumbnails.enabled, thumbnails.size, thumbnails.memory_capacity,
//     thumbnails.workers, thumbnails.shutdown_timeout,
//     thumbnails.cleanup_interval, thumbnails.use_vips
//   - hashing.algorithm (CRC32, XXH64, SHA256), hashing.workers
//   - memory.limit_bytes, memory.ratio
//   - watch.enabled
//   - metrics.enabled, metrics.interval
//
// [WriteDefaultConfig] writes the defaults as a starting YAML file.
//
// # Directory Setup
//
// [Prepare] validates and creates the directories the configuration names:
//   - Database directory: required, must be writable
//   - Cache directory: optional, thumbnails are disabled if it is not writable
//   - Media directory: optional, enables the filesystem watcher
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
//
// # Example Usage
//
//	cfg, err := startup.LoadConfig(*configPath)
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//	features, err := startup.Prepare(cfg)
//	...
//	startup.LogDatabaseInit(info, time.Since(dbStart))
//	startup.LogServerStarted(startup.ServerConfig{Port: cfg.Port, ...})
//
//	// On shutdown...
//	startup.LogShutdownInitiated("SIGTERM")
//	startup.LogShutdownComplete()
package startup

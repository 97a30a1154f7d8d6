package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, result := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(result)
	}

	for _, table := range []string{"file_paths", "file_hashes", "file_metadata", "thumbnail_cache", "session_state"} {
		DBRecordsTotal.WithLabelValues(table)
	}

	for _, cache := range []string{"hash", "metadata"} {
		CacheHits.WithLabelValues(cache)
		CacheMisses.WithLabelValues(cache)
		CacheEvictions.WithLabelValues(cache)
		CacheEntries.WithLabelValues(cache)
	}

	for _, level := range []string{"memory", "disk"} {
		ThumbnailCacheHits.WithLabelValues(level)
	}

	for _, t := range []string{"image", "video"} {
		ThumbnailGenerationDuration.WithLabelValues(t)
		for _, status := range []string{"success", "error_vanished", "error_unsupported", "error_corrupt", "discarded"} {
			ThumbnailGenerationsTotal.WithLabelValues(t, status)
		}
	}

	for _, algo := range []string{"CRC32", "XXH64", "SHA256"} {
		HashBytesTotal.WithLabelValues(algo)
		for _, status := range []string{"hashed", "cached", "failed"} {
			HashFilesTotal.WithLabelValues(algo, status)
		}
	}

	volumes := []string{"media", "cache", "database", "unknown"}
	for _, op := range []string{"stat", "open"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, ev := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(ev)
	}
}

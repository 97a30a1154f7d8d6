package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"batch-renamer/internal/logging"
	"batch-renamer/internal/metrics"
)

// RetryConfig bounds how long a stale NFS handle is retried.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the default resolver for metric labels.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig retries three times, 50ms doubling up to 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c RetryConfig) volume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Load().Resolve(path)
}

// isStale reports whether err is ESTALE. Only stale handles are retried;
// every other error is returned at once.
func isStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// withRetry calls fn until it succeeds, fails with a non-stale error, or the
// retry budget is spent.
func withRetry[T any](op, path string, cfg RetryConfig, fn func() (T, error)) (T, error) {
	start := time.Now()
	volume := cfg.volume(path)
	defer func() {
		metrics.FilesystemRetryDuration.WithLabelValues(op, volume).Observe(time.Since(start).Seconds())
	}()

	backoff := cfg.InitialBackoff
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s of %s succeeded after %d stale-handle retries", op, path, attempt)
				metrics.FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
			}
			return v, nil
		}
		if !isStale(err) {
			return v, err
		}

		metrics.FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
		if attempt >= cfg.MaxRetries {
			logging.Warn("%s of %s still stale after %d retries: %v", op, path, cfg.MaxRetries, err)
			metrics.FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
			return v, err
		}

		metrics.FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
		logging.Debug("%s of %s hit a stale handle, retry %d/%d in %v", op, path, attempt+1, cfg.MaxRetries, backoff)
		time.Sleep(backoff)
		backoff = min(backoff*2, cfg.MaxBackoff)
	}
}

// StatWithRetry is os.Stat with stale-handle retries.
func StatWithRetry(path string, cfg RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, cfg, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry is os.Open with stale-handle retries.
func OpenWithRetry(path string, cfg RetryConfig) (*os.File, error) {
	return withRetry("open", path, cfg, func() (*os.File, error) {
		return os.Open(path)
	})
}

// FileFacts is the subset of stat output the caches key on.
type FileFacts struct {
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Facts stats path with the default retry policy. ok is false when the file
// cannot be stat'ed for any reason; callers treat that as "unknown".
func Facts(path string) (FileFacts, bool) {
	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		return FileFacts{}, false
	}
	return FileFacts{Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, true
}

// Exists reports whether path refers to an existing regular file.
func Exists(path string) bool {
	facts, ok := Facts(path)
	return ok && !facts.IsDir
}

/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

# Purpose

Cached records are keyed by file identity, and the libraries the cache fronts
often live on network mounts. This package wraps os.Stat and os.Open with retry
logic for transient ESTALE failures, and exposes Facts, the (size, mtime)
snapshot the thumbnail fingerprint and the path registry key on.

# Usage

	info, err := filesystem.StatWithRetry("/nfs/mount/file.jpg", filesystem.DefaultRetryConfig())
	if err != nil {
	    return err
	}

	facts, ok := filesystem.Facts(path)
	if !ok {
	    // treat as vanished
	}

# Retry Behavior

The retry logic implements exponential backoff with the following defaults:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

Only NFS stale file handle errors (ESTALE) trigger retries. All other errors
fail immediately without retry attempts.

Retry counters are labelled with a volume name resolved through a
VolumeResolver registered at startup (media, cache, database).
*/
package filesystem

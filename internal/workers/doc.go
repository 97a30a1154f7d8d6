/*
Package workers sizes and runs the fixed worker pools of the cache service.

# Sizing

Each pool is sized once at construction. A positive size from configuration
(thumbnails.workers, hashing.workers) is used directly; otherwise the size is
derived from GOMAXPROCS, which respects container CPU limits, scaled by the
kind of work:

	workers.ForCPU(cfg.Hashing.Workers, 0)      // hashing: 1 per CPU
	workers.ForIO(0, 16)                        // tag extraction: 2 per CPU, max 16
	workers.ForMixed(cfg.Thumbnails.Workers, 8) // thumbnails: 1.5 per CPU, max 8

# Running

Run fans a slice of items out to n goroutines and returns when all of them
are done. The batch producers use it; the thumbnail pipeline keeps its own
long-lived pool because requests arrive over time.
*/
package workers

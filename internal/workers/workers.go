package workers

import (
	"context"
	"runtime"
	"sync"
)

// Count returns the number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS.
//
// A positive configured value is used as-is (capped by limit); pool sizes
// come from configuration, never from sampled CPU load. Otherwise the
// multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 1.5 for mixed tasks
//
// The limit parameter caps the worker count. Use 0 for no limit.
func Count(configured int, multiplier float64, limit int) int {
	if configured > 0 {
		if limit > 0 && configured > limit {
			return limit
		}
		return configured
	}

	available := runtime.GOMAXPROCS(0)
	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU), e.g. hashing.
func ForCPU(configured, limit int) int {
	return Count(configured, 1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU), e.g. tag reads.
func ForIO(configured, limit int) int {
	return Count(configured, 2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU), e.g. thumbnails.
func ForMixed(configured, limit int) int {
	return Count(configured, 1.5, limit)
}

// Run feeds items to n goroutines calling fn and returns once every started
// call has finished. Items not yet handed out when ctx is cancelled are
// skipped.
func Run[T any](ctx context.Context, n int, items []T, fn func(context.Context, T)) {
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}

	feed := make(chan T)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range feed {
				fn(ctx, item)
			}
		}()
	}

feedLoop:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case feed <- item:
		case <-ctx.Done():
			break feedLoop
		}
	}
	close(feed)
	wg.Wait()
}

package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"batch-renamer/internal/metrics"
)

// keySep joins a path and its discriminator. Normalized paths never contain
// control bytes, so the join is unambiguous.
const keySep = "\x00"

// Key builds the tier key for a path and discriminator.
func Key(path, discriminator string) string {
	return path + keySep + discriminator
}

// Backend is the durable store a Tiered cache writes through to.
type Backend[V any] interface {
	// Load returns the durable value, or false when absent or unreadable.
	Load(ctx context.Context, path, discriminator string) (V, bool)
	// Store persists the value. The tier is only updated when Store succeeds.
	Store(ctx context.Context, path, discriminator string, value V) error
}

// Stats describes a tier for tuning and tests.
type Stats struct {
	Name     string `json:"name"`
	Hits     int64  `json:"hits"`
	Misses   int64  `json:"misses"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
}

// Tiered is a write-through LRU in front of a durable Backend.
type Tiered[V any] struct {
	name    string
	lru     *LRU[string, V]
	backend Backend[V]

	hits   atomic.Int64
	misses atomic.Int64

	// writeMu orders tier updates against Put and Invalidate. gen changes on
	// every mutation so a Get that raced one does not re-populate the tier
	// with the value it loaded before the mutation.
	writeMu sync.Mutex
	gen     uint64
}

// NewTiered creates a tier named name (the metrics label) holding at most
// capacity records loaded from backend.
func NewTiered[V any](name string, capacity int, backend Backend[V]) *Tiered[V] {
	t := &Tiered[V]{name: name, backend: backend}
	t.lru = NewLRU[string, V](capacity, func(string, V) {
		metrics.CacheEvictions.WithLabelValues(name).Inc()
	})
	return t
}

// Get returns the value for (path, discriminator), consulting the backend
// on a tier miss and re-populating the tier when the backend has it.
func (t *Tiered[V]) Get(ctx context.Context, path, discriminator string) (V, bool) {
	key := Key(path, discriminator)
	if v, ok := t.lru.Get(key); ok {
		t.hits.Add(1)
		metrics.CacheHits.WithLabelValues(t.name).Inc()
		return v, true
	}
	t.misses.Add(1)
	metrics.CacheMisses.WithLabelValues(t.name).Inc()

	t.writeMu.Lock()
	gen := t.gen
	t.writeMu.Unlock()

	v, ok := t.backend.Load(ctx, path, discriminator)
	if !ok {
		return v, false
	}

	t.writeMu.Lock()
	if t.gen == gen {
		t.lru.Add(key, v)
	}
	t.writeMu.Unlock()
	t.updateGauge()
	return v, true
}

// Put stores the value durably, then updates the tier. A failed store
// leaves the tier untouched and returns the backend error.
func (t *Tiered[V]) Put(ctx context.Context, path, discriminator string, value V) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.backend.Store(ctx, path, discriminator, value); err != nil {
		return err
	}
	t.gen++
	t.lru.Add(Key(path, discriminator), value)
	t.updateGauge()
	return nil
}

// Contains reports whether the tier itself holds the key, without
// consulting the backend or changing recency.
func (t *Tiered[V]) Contains(path, discriminator string) bool {
	return t.lru.Contains(Key(path, discriminator))
}

// Invalidate drops every discriminator cached for path and returns how many
// entries were removed. The durable store is not touched.
func (t *Tiered[V]) Invalidate(path string) int {
	prefix := path + keySep

	t.writeMu.Lock()
	t.gen++
	n := t.lru.RemoveFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
	t.writeMu.Unlock()

	t.updateGauge()
	return n
}

// Clear empties the tier. Durable values stay reachable through Get.
func (t *Tiered[V]) Clear() {
	t.writeMu.Lock()
	t.gen++
	t.lru.Purge()
	t.writeMu.Unlock()
	t.updateGauge()
}

// Stats returns hit/miss counters and the current size.
func (t *Tiered[V]) Stats() Stats {
	return Stats{
		Name:     t.name,
		Hits:     t.hits.Load(),
		Misses:   t.misses.Load(),
		Size:     t.lru.Len(),
		Capacity: t.lru.Capacity(),
	}
}

func (t *Tiered[V]) updateGauge() {
	metrics.CacheEntries.WithLabelValues(t.name).Set(float64(t.lru.Len()))
}

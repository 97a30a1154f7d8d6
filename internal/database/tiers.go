package database

import (
	"context"

	"batch-renamer/internal/cache"
)

// forgetID drops tier entries for the path behind pathID after an id-level
// write bypassed the tier.
func (d *Database) forgetID(ctx context.Context, pathID int64) {
	if p, ok := d.pathForID(ctx, pathID); ok {
		d.InvalidateFile(p)
	}
}

// InvalidateFile removes every cached hash and metadata entry of path from
// the in-memory tiers. Durable records are untouched.
func (d *Database) InvalidateFile(path string) {
	norm, err := NormalizePath(path)
	if err != nil {
		return
	}
	d.hashTier.Invalidate(norm)
	d.metaTier.Invalidate(norm)
}

// ClearCaches empties both in-memory tiers.
func (d *Database) ClearCaches() {
	d.hashTier.Clear()
	d.metaTier.Clear()
}

// CacheStats returns hit/miss/size counters of the hash and metadata tiers.
func (d *Database) CacheStats() []cache.Stats {
	return []cache.Stats{d.hashTier.Stats(), d.metaTier.Stats()}
}

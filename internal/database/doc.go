// Package database is the durable store of the batch renamer cache.
//
// One SQLite file (WAL mode) holds:
//   - the path registry, which gives every file a stable path_id that
//     survives renames
//   - content hashes per (path_id, algorithm)
//   - one metadata record per file, either fast or extended
//   - structured metadata values keyed by a category/field taxonomy
//   - color tags
//   - session key/value state
//   - the thumbnail index (file path + mtime to artifact filename) and
//     per-folder manual thumbnail order
//
// Hash and metadata lookups by path go through in-memory LRU tiers (package
// cache) that are written through to the database and invalidated on
// rename and delete.
//
// Writes are serialized through a single lock; readers run concurrently.
// New probes the file with PRAGMA quick_check and, if it is corrupt, moves it
// aside and starts over. Schema changes are applied as numbered migrations
// recorded in the schema_version table.
//
// Reads never fail loudly: a closed, locked or damaged store reads as a miss.
// Writes return errors, wrapping ErrStoreUnavailable when the store could not
// be reached.
package database

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"batch-renamer/internal/logging"
	"batch-renamer/internal/metrics"
)

// PutHash stores the hash of a file for one algorithm, replacing any prior
// value for that (path_id, algorithm).
func (d *Database) PutHash(ctx context.Context, pathID int64, algorithm, value string, sizeAtHash int64) error {
	rec := HashRecord{Algorithm: algorithm, Value: value, FileSizeAtHash: sizeAtHash}
	if err := d.putHash(ctx, pathID, rec); err != nil {
		return err
	}
	d.forgetID(ctx, pathID)
	return nil
}

const upsertHash = `
	INSERT INTO file_hashes (path_id, algorithm, hash_value, file_size_at_hash, file_mtime_at_hash)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(path_id, algorithm) DO UPDATE SET
		hash_value = excluded.hash_value,
		file_size_at_hash = excluded.file_size_at_hash,
		file_mtime_at_hash = excluded.file_mtime_at_hash,
		created_at = strftime('%s', 'now')
`

func (d *Database) putHash(ctx context.Context, pathID int64, rec HashRecord) error {
	_, err := d.exec(ctx, "put_hash", upsertHash,
		pathID, strings.ToUpper(rec.Algorithm), rec.Value, rec.FileSizeAtHash, rec.FileMtimeAtHash)
	return err
}

// HashByID returns the stored hash for (path_id, algorithm).
func (d *Database) HashByID(ctx context.Context, pathID int64, algorithm string) (HashRecord, bool) {
	if !d.readable("get_hash") {
		return HashRecord{}, false
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("get_hash", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rec HashRecord
	var created int64
	err = d.db.QueryRowContext(ctx, `
		SELECT algorithm, hash_value, file_size_at_hash, file_mtime_at_hash, created_at
		FROM file_hashes WHERE path_id = ? AND algorithm = ?
	`, pathID, strings.ToUpper(algorithm)).Scan(&rec.Algorithm, &rec.Value, &rec.FileSizeAtHash, &rec.FileMtimeAtHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		} else {
			logging.Debug("get hash %d/%s: %v", pathID, algorithm, classify("get_hash", err))
		}
		return HashRecord{}, false
	}
	rec.CreatedAt = time.Unix(created, 0)
	return rec, true
}

// HashExists reports whether a hash is stored for (path_id, algorithm).
func (d *Database) HashExists(ctx context.Context, pathID int64, algorithm string) bool {
	_, ok := d.HashByID(ctx, pathID, algorithm)
	return ok
}

// BatchPutHashes stores many hashes in one transaction and returns how many
// succeeded. Failing entries are logged and skipped.
func (d *Database) BatchPutHashes(ctx context.Context, entries []HashEntry) int {
	if len(entries) == 0 {
		return 0
	}

	stored := make([]int64, 0, len(entries))
	err := d.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertHash)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.PathID, strings.ToUpper(e.Algorithm), e.Value, e.FileSizeAtHash, e.FileMtimeAtHash); err != nil {
				logging.Warn("batch hash for path %d (%s) skipped: %v", e.PathID, e.Algorithm, err)
				continue
			}
			stored = append(stored, e.PathID)
		}
		return nil
	})
	if err != nil {
		if !IsUnavailable(err) {
			logging.Warn("batch hash write failed: %v", err)
		}
		return 0
	}

	metrics.DBRowsAffected.WithLabelValues("batch_put_hashes").Observe(float64(len(stored)))
	for _, id := range stored {
		d.forgetID(ctx, id)
	}
	return len(stored)
}

// DuplicateGroup is a set of files sharing one hash value.
type DuplicateGroup struct {
	Hash  string   `json:"hash"`
	Size  int64    `json:"size"`
	Paths []string `json:"paths"`
}

// FindDuplicates groups files whose stored hash for algorithm is identical.
func (d *Database) FindDuplicates(ctx context.Context, algorithm string) ([]DuplicateGroup, error) {
	if !d.readable("find_duplicates") {
		return nil, ErrStoreUnavailable
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("find_duplicates", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT h.hash_value, h.file_size_at_hash, p.normalized_path
		FROM file_hashes h
		JOIN file_paths p ON p.path_id = h.path_id
		WHERE h.algorithm = ? AND h.hash_value IN (
			SELECT hash_value FROM file_hashes
			WHERE algorithm = ?
			GROUP BY hash_value HAVING COUNT(*) > 1
		)
		ORDER BY h.hash_value, p.normalized_path
	`, strings.ToUpper(algorithm), strings.ToUpper(algorithm))
	if err != nil {
		return nil, classify("find_duplicates", err)
	}
	defer rows.Close()

	var groups []DuplicateGroup
	for rows.Next() {
		var hash, path string
		var size int64
		if err = rows.Scan(&hash, &size, &path); err != nil {
			return nil, classify("find_duplicates", err)
		}
		if n := len(groups); n > 0 && groups[n-1].Hash == hash {
			groups[n-1].Paths = append(groups[n-1].Paths, path)
			continue
		}
		groups = append(groups, DuplicateGroup{Hash: hash, Size: size, Paths: []string{path}})
	}
	err = rows.Err()
	return groups, classify("find_duplicates", err)
}

// PathsWithHash returns which of paths already have a stored hash for
// algorithm, keyed by normalized path.
func (d *Database) PathsWithHash(ctx context.Context, paths []string, algorithm string) map[string]bool {
	result := make(map[string]bool, len(paths))
	for _, p := range paths {
		norm, err := NormalizePath(p)
		if err != nil {
			continue
		}
		result[norm] = d.HasHash(ctx, norm, algorithm)
	}
	return result
}

// hashBackend adapts the hash table to cache.Backend, keyed by path.
type hashBackend struct{ d *Database }

func (b hashBackend) Load(ctx context.Context, path, algorithm string) (HashRecord, bool) {
	id, ok := b.d.lookupID(ctx, path)
	if !ok {
		return HashRecord{}, false
	}
	return b.d.HashByID(ctx, id, algorithm)
}

func (b hashBackend) Store(ctx context.Context, path, algorithm string, rec HashRecord) error {
	id, err := b.d.ResolveOrCreate(ctx, path)
	if err != nil {
		return err
	}
	rec.Algorithm = algorithm
	return b.d.putHash(ctx, id, rec)
}

// GetHash returns the hash of path for algorithm through the in-memory tier.
func (d *Database) GetHash(ctx context.Context, path, algorithm string) (HashRecord, bool) {
	norm, err := NormalizePath(path)
	if err != nil {
		return HashRecord{}, false
	}
	return d.hashTier.Get(ctx, norm, strings.ToUpper(algorithm))
}

// StoreHash writes the hash of path through the tier to the durable store
// without a modification time.
func (d *Database) StoreHash(ctx context.Context, path, algorithm, value string, sizeAtHash int64) error {
	return d.StoreHashAt(ctx, path, algorithm, value, sizeAtHash, time.Time{})
}

// StoreHashAt is StoreHash recording the file's modification time at hash
// time, so a rewrite that keeps the size is still detected as stale.
func (d *Database) StoreHashAt(ctx context.Context, path, algorithm, value string, sizeAtHash int64, mtime time.Time) error {
	norm, err := NormalizePath(path)
	if err != nil {
		return err
	}
	algorithm = strings.ToUpper(algorithm)
	rec := HashRecord{Algorithm: algorithm, Value: value, FileSizeAtHash: sizeAtHash, CreatedAt: time.Now()}
	if !mtime.IsZero() {
		rec.FileMtimeAtHash = mtime.UnixNano()
	}
	if err := d.hashTier.Put(ctx, norm, algorithm, rec); err != nil {
		return fmt.Errorf("store hash for %s: %w", norm, err)
	}
	return nil
}

// HasHash reports whether a hash is known for path and algorithm.
func (d *Database) HasHash(ctx context.Context, path, algorithm string) bool {
	_, ok := d.GetHash(ctx, path, algorithm)
	return ok
}

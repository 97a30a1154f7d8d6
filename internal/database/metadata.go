package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"batch-renamer/internal/logging"
	"batch-renamer/internal/metrics"
)

// metadataSlot is the tier discriminator for metadata. There is one
// authoritative record per path, so the kind lives in the value.
const metadataSlot = "metadata"

// maxInParams keeps IN (...) lists under SQLite's host parameter limit.
const maxInParams = 900

const upsertMetadata = `
	INSERT INTO file_metadata (path_id, metadata_type, metadata_blob, is_modified, updated_at)
	VALUES (?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(path_id) DO UPDATE SET
		metadata_type = excluded.metadata_type,
		metadata_blob = excluded.metadata_blob,
		is_modified = excluded.is_modified,
		updated_at = excluded.updated_at
`

// PutMetadata replaces the metadata record of pathID.
func (d *Database) PutMetadata(ctx context.Context, pathID int64, kind MetadataKind, data map[string]any, modified bool) error {
	if err := d.putMetadata(ctx, pathID, kind, data, modified); err != nil {
		return err
	}
	d.forgetID(ctx, pathID)
	return nil
}

func (d *Database) putMetadata(ctx context.Context, pathID int64, kind MetadataKind, data map[string]any, modified bool) error {
	blob, err := encodeBlob(data)
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, "put_metadata", upsertMetadata, pathID, string(kind), blob, modified)
	return err
}

func encodeBlob(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(blob), nil
}

// normalizeBlob round-trips data through its stored JSON form, so a tier
// hit carries the same value types as a durable read and shares no maps with
// the caller.
func normalizeBlob(data map[string]any) (map[string]any, error) {
	blob, err := encodeBlob(data)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(blob), &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return out, nil
}

func scanMetadata(pathID int64, kind, blob string, modified bool, updated int64) (MetadataRecord, error) {
	rec := MetadataRecord{
		PathID:    pathID,
		Kind:      MetadataKind(kind),
		Modified:  modified,
		UpdatedAt: time.Unix(updated, 0),
	}
	if err := json.Unmarshal([]byte(blob), &rec.Data); err != nil {
		return rec, fmt.Errorf("decode metadata for path %d: %w", pathID, err)
	}
	return rec, nil
}

// MetadataByID returns the metadata record of pathID if its kind satisfies
// kind. An extended record answers a fast query.
func (d *Database) MetadataByID(ctx context.Context, pathID int64, kind MetadataKind) (MetadataRecord, bool) {
	rec, ok := d.metadataRow(ctx, pathID)
	if !ok || !rec.Kind.Satisfies(kind) {
		return MetadataRecord{}, false
	}
	return rec, true
}

func (d *Database) metadataRow(ctx context.Context, pathID int64) (MetadataRecord, bool) {
	if !d.readable("get_metadata") {
		return MetadataRecord{}, false
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("get_metadata", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var kind, blob string
	var modified bool
	var updated int64
	err = d.db.QueryRowContext(ctx, `
		SELECT metadata_type, metadata_blob, is_modified, updated_at
		FROM file_metadata WHERE path_id = ?
	`, pathID).Scan(&kind, &blob, &modified, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		} else {
			logging.Debug("get metadata %d: %v", pathID, classify("get_metadata", err))
		}
		return MetadataRecord{}, false
	}

	rec, decodeErr := scanMetadata(pathID, kind, blob, modified, updated)
	if decodeErr != nil {
		logging.Warn("%v", decodeErr)
		return MetadataRecord{}, false
	}
	return rec, true
}

// MetadataExists reports whether a record satisfying kind is stored.
func (d *Database) MetadataExists(ctx context.Context, pathID int64, kind MetadataKind) bool {
	_, ok := d.MetadataByID(ctx, pathID, kind)
	return ok
}

// SetMetadataModified flags a record as edited by the user (or clears it).
func (d *Database) SetMetadataModified(ctx context.Context, pathID int64, modified bool) error {
	_, err := d.exec(ctx, "set_metadata_modified",
		"UPDATE file_metadata SET is_modified = ?, updated_at = strftime('%s', 'now') WHERE path_id = ?",
		modified, pathID)
	if err != nil {
		return err
	}
	d.forgetID(ctx, pathID)
	return nil
}

// BatchPutMetadata stores many records in one transaction and returns how
// many succeeded. Failing entries are logged and skipped.
func (d *Database) BatchPutMetadata(ctx context.Context, entries []MetadataEntry) int {
	if len(entries) == 0 {
		return 0
	}

	stored := make([]int64, 0, len(entries))
	err := d.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertMetadata)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			blob, err := encodeBlob(e.Data)
			if err == nil {
				_, err = stmt.ExecContext(ctx, e.PathID, string(e.Kind), blob, e.Modified)
			}
			if err != nil {
				logging.Warn("batch metadata for path %d skipped: %v", e.PathID, err)
				continue
			}
			stored = append(stored, e.PathID)
		}
		return nil
	})
	if err != nil {
		if !IsUnavailable(err) {
			logging.Warn("batch metadata write failed: %v", err)
		}
		return 0
	}

	metrics.DBRowsAffected.WithLabelValues("batch_put_metadata").Observe(float64(len(stored)))
	for _, id := range stored {
		d.forgetID(ctx, id)
	}
	return len(stored)
}

// BatchGetMetadata loads the records of many paths with one IN query per
// chunk of ids. Missing ids are absent from the result.
func (d *Database) BatchGetMetadata(ctx context.Context, pathIDs []int64) map[int64]MetadataRecord {
	result := make(map[int64]MetadataRecord, len(pathIDs))
	if len(pathIDs) == 0 || !d.readable("batch_get_metadata") {
		return result
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("batch_get_metadata", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for lo := 0; lo < len(pathIDs); lo += maxInParams {
		hi := min(lo+maxInParams, len(pathIDs))
		chunk := pathIDs[lo:hi]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		var rows *sql.Rows
		rows, err = d.db.QueryContext(ctx, `
			SELECT path_id, metadata_type, metadata_blob, is_modified, updated_at
			FROM file_metadata WHERE path_id IN (`+placeholders+`)`, args...)
		if err != nil {
			logging.Debug("batch get metadata: %v", classify("batch_get_metadata", err))
			return result
		}

		for rows.Next() {
			var id, updated int64
			var kind, blob string
			var modified bool
			if err = rows.Scan(&id, &kind, &blob, &modified, &updated); err != nil {
				break
			}
			rec, decodeErr := scanMetadata(id, kind, blob, modified, updated)
			if decodeErr != nil {
				logging.Warn("%v", decodeErr)
				continue
			}
			result[id] = rec
		}
		if err == nil {
			err = rows.Err()
		}
		rows.Close()
		if err != nil {
			logging.Debug("batch get metadata: %v", classify("batch_get_metadata", err))
			return result
		}
	}
	return result
}

// metadataBackend adapts the metadata table to cache.Backend, keyed by path.
type metadataBackend struct{ d *Database }

func (b metadataBackend) Load(ctx context.Context, path, _ string) (MetadataRecord, bool) {
	id, ok := b.d.lookupID(ctx, path)
	if !ok {
		return MetadataRecord{}, false
	}
	return b.d.metadataRow(ctx, id)
}

func (b metadataBackend) Store(ctx context.Context, path, _ string, rec MetadataRecord) error {
	id, err := b.d.ResolveOrCreate(ctx, path)
	if err != nil {
		return err
	}
	return b.d.putMetadata(ctx, id, rec.Kind, rec.Data, rec.Modified)
}

// GetFileMetadata returns the metadata of path through the in-memory tier if
// the stored record satisfies kind.
func (d *Database) GetFileMetadata(ctx context.Context, path string, kind MetadataKind) (MetadataRecord, bool) {
	norm, err := NormalizePath(path)
	if err != nil {
		return MetadataRecord{}, false
	}
	rec, ok := d.metaTier.Get(ctx, norm, metadataSlot)
	if !ok || !rec.Kind.Satisfies(kind) {
		return MetadataRecord{}, false
	}
	return rec, true
}

// StoreFileMetadata writes the metadata of path through the tier.
func (d *Database) StoreFileMetadata(ctx context.Context, path string, kind MetadataKind, data map[string]any, modified bool) error {
	norm, err := NormalizePath(path)
	if err != nil {
		return err
	}
	id, err := d.ResolveOrCreate(ctx, norm)
	if err != nil {
		return err
	}
	normalized, err := normalizeBlob(data)
	if err != nil {
		return err
	}
	rec := MetadataRecord{PathID: id, Kind: kind, Data: normalized, Modified: modified, UpdatedAt: time.Now()}
	if err := d.metaTier.Put(ctx, norm, metadataSlot, rec); err != nil {
		return fmt.Errorf("store metadata for %s: %w", norm, err)
	}
	return nil
}

// HasFileMetadata reports whether metadata satisfying kind is known for path.
func (d *Database) HasFileMetadata(ctx context.Context, path string, kind MetadataKind) bool {
	_, ok := d.GetFileMetadata(ctx, path, kind)
	return ok
}

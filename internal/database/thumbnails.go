package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"batch-renamer/internal/logging"
)

// GetThumbnail returns the index entry for path at exactly mtime (unix
// nanoseconds). An entry recorded for any other mtime is stale and never
// returned.
func (d *Database) GetThumbnail(ctx context.Context, path string, mtime int64) (ThumbnailEntry, bool) {
	norm, err := NormalizePath(path)
	if err != nil || !d.readable("get_thumbnail") {
		return ThumbnailEntry{}, false
	}

	start := time.Now()
	defer func() { recordQuery("get_thumbnail", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var e ThumbnailEntry
	var frame sql.NullFloat64
	err = d.db.QueryRowContext(ctx, `
		SELECT folder_path, file_path, file_mtime, file_size, cache_filename, video_frame_time
		FROM thumbnail_cache WHERE file_path = ? AND file_mtime = ?
	`, norm, mtime).Scan(&e.FolderPath, &e.FilePath, &e.FileMtime, &e.FileSize, &e.CacheFilename, &frame)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		} else {
			logging.Debug("get thumbnail %s: %v", norm, classify("get_thumbnail", err))
		}
		return ThumbnailEntry{}, false
	}
	if frame.Valid {
		e.VideoFrameTime = &frame.Float64
	}
	return e, true
}

// PutThumbnail records an entry and drops entries of the same file recorded
// for other mtimes. It returns the cache filenames of the dropped entries so
// their artifacts can be deleted.
func (d *Database) PutThumbnail(ctx context.Context, entry ThumbnailEntry) ([]string, error) {
	norm, err := NormalizePath(entry.FilePath)
	if err != nil {
		return nil, err
	}
	entry.FilePath = norm
	if entry.FolderPath == "" {
		entry.FolderPath = filepath.Dir(norm)
	}

	var stale []string
	err = d.Transaction(ctx, func(tx *sql.Tx) error {
		stale = stale[:0]
		rows, err := tx.QueryContext(ctx, `
			SELECT cache_filename FROM thumbnail_cache
			WHERE file_path = ? AND file_mtime != ? AND cache_filename != ?
		`, norm, entry.FileMtime, entry.CacheFilename)
		if err != nil {
			return err
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return err
			}
			stale = append(stale, name)
		}
		rows.Close()

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM thumbnail_cache WHERE file_path = ? AND file_mtime != ?", norm, entry.FileMtime); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO thumbnail_cache (folder_path, file_path, file_mtime, file_size, cache_filename, video_frame_time)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_path, file_mtime) DO UPDATE SET
				folder_path = excluded.folder_path,
				file_size = excluded.file_size,
				cache_filename = excluded.cache_filename,
				video_frame_time = excluded.video_frame_time
		`, entry.FolderPath, norm, entry.FileMtime, entry.FileSize, entry.CacheFilename, entry.VideoFrameTime)
		return err
	})
	if err != nil {
		return nil, classify("put_thumbnail", err)
	}
	return stale, nil
}

// InvalidateThumbnails removes every entry of path and returns their cache
// filenames.
func (d *Database) InvalidateThumbnails(ctx context.Context, path string) ([]string, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}

	var names []string
	err = d.Transaction(ctx, func(tx *sql.Tx) error {
		names = names[:0]
		rows, err := tx.QueryContext(ctx, "SELECT cache_filename FROM thumbnail_cache WHERE file_path = ?", norm)
		if err != nil {
			return err
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return err
			}
			names = append(names, name)
		}
		rows.Close()

		_, err = tx.ExecContext(ctx, "DELETE FROM thumbnail_cache WHERE file_path = ?", norm)
		return err
	})
	if err != nil {
		return nil, classify("invalidate_thumbnails", err)
	}
	return names, nil
}

// ThumbnailsInFolder returns the entries recorded for files directly in folder.
func (d *Database) ThumbnailsInFolder(ctx context.Context, folder string) ([]ThumbnailEntry, error) {
	norm, err := NormalizePath(folder)
	if err != nil {
		return nil, err
	}
	if !d.readable("thumbnails_in_folder") {
		return nil, ErrStoreUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT folder_path, file_path, file_mtime, file_size, cache_filename, video_frame_time
		FROM thumbnail_cache WHERE folder_path = ? ORDER BY file_path
	`, norm)
	if err != nil {
		return nil, classify("thumbnails_in_folder", err)
	}
	defer rows.Close()

	var entries []ThumbnailEntry
	for rows.Next() {
		var e ThumbnailEntry
		var frame sql.NullFloat64
		if err := rows.Scan(&e.FolderPath, &e.FilePath, &e.FileMtime, &e.FileSize, &e.CacheFilename, &frame); err != nil {
			return nil, classify("thumbnails_in_folder", err)
		}
		if frame.Valid {
			e.VideoFrameTime = &frame.Float64
		}
		entries = append(entries, e)
	}
	return entries, classify("thumbnails_in_folder", rows.Err())
}

// ThumbnailCacheFilenames returns every cache filename the index references.
func (d *Database) ThumbnailCacheFilenames(ctx context.Context) (map[string]struct{}, error) {
	if !d.readable("thumbnail_filenames") {
		return nil, ErrStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT cache_filename FROM thumbnail_cache")
	if err != nil {
		return nil, classify("thumbnail_filenames", err)
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classify("thumbnail_filenames", err)
		}
		names[name] = struct{}{}
	}
	return names, classify("thumbnail_filenames", rows.Err())
}

// ThumbnailCount returns the number of index entries.
func (d *Database) ThumbnailCount(ctx context.Context) int64 {
	if !d.readable("thumbnail_count") {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM thumbnail_cache").Scan(&n); err != nil {
		return 0
	}
	return n
}

// GetThumbnailOrder returns the manual order of folder, if one is set.
func (d *Database) GetThumbnailOrder(ctx context.Context, folder string) ([]string, bool) {
	norm, err := NormalizePath(folder)
	if err != nil || !d.readable("get_thumbnail_order") {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var raw string
	if err := d.db.QueryRowContext(ctx,
		"SELECT file_paths_json FROM thumbnail_order WHERE folder_path = ?", norm).Scan(&raw); err != nil {
		return nil, false
	}
	var paths []string
	if err := json.Unmarshal([]byte(raw), &paths); err != nil {
		logging.Warn("thumbnail order for %s is corrupt: %v", norm, err)
		return nil, false
	}
	return paths, true
}

// SetThumbnailOrder stores a manual order for folder.
func (d *Database) SetThumbnailOrder(ctx context.Context, folder string, paths []string) error {
	norm, err := NormalizePath(folder)
	if err != nil {
		return err
	}
	if paths == nil {
		paths = []string{}
	}
	raw, err := json.Marshal(paths)
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, "set_thumbnail_order", `
		INSERT INTO thumbnail_order (folder_path, file_paths_json, updated_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(folder_path) DO UPDATE SET
			file_paths_json = excluded.file_paths_json,
			updated_at = excluded.updated_at
	`, norm, string(raw))
	return err
}

// ClearThumbnailOrder resets folder to automatic order.
func (d *Database) ClearThumbnailOrder(ctx context.Context, folder string) error {
	norm, err := NormalizePath(folder)
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, "clear_thumbnail_order", "DELETE FROM thumbnail_order WHERE folder_path = ?", norm)
	return err
}

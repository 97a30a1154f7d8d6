package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"batch-renamer/internal/filesystem"
	"batch-renamer/internal/logging"
)

// NormalizePath validates p and returns its absolute, cleaned form. Empty
// paths and paths containing ASCII control bytes are rejected with
// ErrInvalidPath before any store access.
func NormalizePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	for i := 0; i < len(p); i++ {
		if c := p[i]; c < 0x20 || c == 0x7f {
			return "", fmt.Errorf("%w: control byte 0x%02x at offset %d", ErrInvalidPath, c, i)
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return filepath.Clean(abs), nil
}

// statFacts captures size and mtime best-effort; nil fields mean unknown.
func statFacts(path string) (size, mtime *int64) {
	facts, ok := filesystem.Facts(path)
	if !ok || facts.IsDir {
		return nil, nil
	}
	s, m := facts.Size, facts.ModTime.UnixNano()
	return &s, &m
}

// ResolveOrCreate returns the path_id for path, creating the record on first
// reference. Concurrent callers for the same path get the same id.
func (d *Database) ResolveOrCreate(ctx context.Context, path string) (int64, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return 0, err
	}

	if id, ok := d.lookupID(ctx, norm); ok {
		return id, nil
	}

	size, mtime := statFacts(norm)
	_, err = d.exec(ctx, "resolve_or_create", `
		INSERT INTO file_paths (normalized_path, filename, file_size, modified_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(normalized_path) DO NOTHING
	`, norm, filepath.Base(norm), size, mtime)
	if err != nil {
		return 0, err
	}

	id, ok := d.lookupID(ctx, norm)
	if !ok {
		return 0, classify("resolve_or_create", fmt.Errorf("path record for %s vanished after insert", norm))
	}
	return id, nil
}

// Resolve returns the path_id for path without creating a record.
func (d *Database) Resolve(ctx context.Context, path string) (int64, bool, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return 0, false, err
	}
	id, ok := d.lookupID(ctx, norm)
	return id, ok, nil
}

func (d *Database) lookupID(ctx context.Context, norm string) (int64, bool) {
	if !d.readable("resolve") {
		return 0, false
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("resolve", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id int64
	err = d.db.QueryRowContext(ctx, "SELECT path_id FROM file_paths WHERE normalized_path = ?", norm).Scan(&id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Debug("resolve %s: %v", norm, classify("resolve", err))
		} else {
			err = nil
		}
		return 0, false
	}
	return id, true
}

// pathForID returns the normalized path of a record.
func (d *Database) pathForID(ctx context.Context, id int64) (string, bool) {
	if !d.readable("path_for_id") {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var p string
	if err := d.db.QueryRowContext(ctx, "SELECT normalized_path FROM file_paths WHERE path_id = ?", id).Scan(&p); err != nil {
		return "", false
	}
	return p, true
}

// Rename moves the record of oldPath to newPath in place, keeping its
// path_id and every attached hash, metadata and color record. It returns
// false when oldPath has no record. If newPath already had a different
// record, that record is purged first: the renamed file supersedes it.
// Thumbnail index rows of oldPath are dropped.
func (d *Database) Rename(ctx context.Context, oldPath, newPath string) (bool, error) {
	oldNorm, err := NormalizePath(oldPath)
	if err != nil {
		return false, err
	}
	newNorm, err := NormalizePath(newPath)
	if err != nil {
		return false, err
	}

	size, mtime := statFacts(newNorm)
	renamed := false

	err = d.Transaction(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, "SELECT path_id FROM file_paths WHERE normalized_path = ?", oldNorm).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		if oldNorm != newNorm {
			var existing int64
			err = tx.QueryRowContext(ctx, "SELECT path_id FROM file_paths WHERE normalized_path = ?", newNorm).Scan(&existing)
			switch {
			case err == nil && existing != id:
				logging.Debug("rename %s -> %s supersedes record %d", oldNorm, newNorm, existing)
				if _, err := tx.ExecContext(ctx, "DELETE FROM file_paths WHERE path_id = ?", existing); err != nil {
					return err
				}
			case err != nil && !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE file_paths SET
				normalized_path = ?,
				filename = ?,
				file_size = COALESCE(?, file_size),
				modified_time = COALESCE(?, modified_time),
				updated_at = strftime('%s', 'now')
			WHERE path_id = ?
		`, newNorm, filepath.Base(newNorm), size, mtime, id); err != nil {
			return err
		}

		if oldNorm != newNorm {
			if _, err := tx.ExecContext(ctx, "DELETE FROM thumbnail_cache WHERE file_path = ?", oldNorm); err != nil {
				return err
			}
		}
		renamed = true
		return nil
	})
	if err != nil {
		return false, classify("rename", err)
	}

	// Tier locks are taken after the write lock is released.
	d.InvalidateFile(oldNorm)
	d.InvalidateFile(newNorm)
	return renamed, nil
}

// FileRecord returns the registry record of path.
func (d *Database) FileRecord(ctx context.Context, path string) (*FilePathRecord, bool) {
	norm, err := NormalizePath(path)
	if err != nil || !d.readable("file_record") {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rec FilePathRecord
	var size, mtime sql.NullInt64
	var created, updated int64
	err = d.db.QueryRowContext(ctx, `
		SELECT path_id, normalized_path, filename, file_size, modified_time, color_tag, created_at, updated_at
		FROM file_paths WHERE normalized_path = ?
	`, norm).Scan(&rec.PathID, &rec.Path, &rec.Filename, &size, &mtime, &rec.ColorTag, &created, &updated)
	if err != nil {
		return nil, false
	}
	if size.Valid {
		rec.FileSize = &size.Int64
	}
	if mtime.Valid {
		rec.ModifiedTime = &mtime.Int64
	}
	rec.CreatedAt = time.Unix(created, 0)
	rec.UpdatedAt = time.Unix(updated, 0)
	return &rec, true
}

// DeleteFile purges the record of path together with its hashes, metadata
// and structured values. It reports whether a record existed.
func (d *Database) DeleteFile(ctx context.Context, path string) (bool, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	res, err := d.exec(ctx, "delete_file", "DELETE FROM file_paths WHERE normalized_path = ?", norm)
	if err != nil {
		return false, err
	}
	d.InvalidateFile(norm)
	n, _ := res.RowsAffected()
	return n > 0, nil
}

var colorTagPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ColorNone is the color tag of an untagged file.
const ColorNone = "none"

// SetColorTag stores a "#rrggbb" color (or "none") for path, creating the
// record if needed.
func (d *Database) SetColorTag(ctx context.Context, path, color string) error {
	color = strings.ToLower(strings.TrimSpace(color))
	if color == "" {
		color = ColorNone
	}
	if color != ColorNone && !colorTagPattern.MatchString(color) {
		return fmt.Errorf("invalid color tag %q", color)
	}

	id, err := d.ResolveOrCreate(ctx, path)
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, "set_color_tag",
		"UPDATE file_paths SET color_tag = ?, updated_at = strftime('%s', 'now') WHERE path_id = ?", color, id)
	return err
}

// GetColorTag returns the color tag of path, or "none" when unknown.
func (d *Database) GetColorTag(ctx context.Context, path string) string {
	rec, ok := d.FileRecord(ctx, path)
	if !ok || rec.ColorTag == "" {
		return ColorNone
	}
	return rec.ColorTag
}

package database

import (
	"context"
	"database/sql"
	"fmt"

	"batch-renamer/internal/logging"
)

// currentSchemaVersion is the version New migrates every store to.
const currentSchemaVersion = 6

type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations are applied in order, each in its own transaction. Never edit a
// released step; append a new one.
var migrations = []migration{
	{
		version: 1,
		name:    "path registry, hashes, metadata, session state",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS file_paths (
				path_id INTEGER PRIMARY KEY AUTOINCREMENT,
				normalized_path TEXT NOT NULL UNIQUE,
				filename TEXT NOT NULL,
				file_size INTEGER,
				modified_time INTEGER,
				created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
			)`,
			`CREATE TABLE IF NOT EXISTS file_hashes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				path_id INTEGER NOT NULL,
				algorithm TEXT NOT NULL,
				hash_value TEXT NOT NULL,
				file_size_at_hash INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
				FOREIGN KEY (path_id) REFERENCES file_paths(path_id) ON DELETE CASCADE,
				UNIQUE(path_id, algorithm)
			)`,
			`CREATE TABLE IF NOT EXISTS file_metadata (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				path_id INTEGER NOT NULL UNIQUE,
				metadata_type TEXT NOT NULL,
				metadata_blob TEXT NOT NULL,
				is_modified INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
				FOREIGN KEY (path_id) REFERENCES file_paths(path_id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS session_state (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				value_type TEXT NOT NULL,
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
			)`,
		},
	},
	{
		version: 2,
		name:    "structured metadata taxonomy",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS metadata_categories (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				key TEXT NOT NULL UNIQUE,
				display_name TEXT NOT NULL,
				sort_order INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS metadata_fields (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				key TEXT NOT NULL UNIQUE,
				category_id INTEGER NOT NULL,
				data_type TEXT NOT NULL DEFAULT 'text',
				sort_order INTEGER NOT NULL DEFAULT 0,
				FOREIGN KEY (category_id) REFERENCES metadata_categories(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS file_metadata_structured (
				path_id INTEGER NOT NULL,
				field_id INTEGER NOT NULL,
				field_value TEXT,
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
				FOREIGN KEY (path_id) REFERENCES file_paths(path_id) ON DELETE CASCADE,
				FOREIGN KEY (field_id) REFERENCES metadata_fields(id) ON DELETE CASCADE,
				UNIQUE(path_id, field_id)
			)`,
		},
	},
	{
		version: 3,
		name:    "color tags",
		stmts: []string{
			`ALTER TABLE file_paths ADD COLUMN color_tag TEXT NOT NULL DEFAULT 'none'`,
		},
	},
	{
		version: 4,
		name:    "lookup indexes",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_file_hashes_value ON file_hashes(algorithm, hash_value)`,
			`CREATE INDEX IF NOT EXISTS idx_file_metadata_type ON file_metadata(metadata_type)`,
			`CREATE INDEX IF NOT EXISTS idx_file_paths_filename ON file_paths(filename)`,
			`CREATE INDEX IF NOT EXISTS idx_structured_field ON file_metadata_structured(field_id)`,
		},
	},
	{
		version: 5,
		name:    "thumbnail index and manual order",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS thumbnail_cache (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				folder_path TEXT NOT NULL,
				file_path TEXT NOT NULL,
				file_mtime INTEGER NOT NULL,
				file_size INTEGER NOT NULL DEFAULT 0,
				cache_filename TEXT NOT NULL,
				video_frame_time REAL,
				created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
				UNIQUE(file_path, file_mtime)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_thumbnail_cache_folder ON thumbnail_cache(folder_path)`,
			`CREATE INDEX IF NOT EXISTS idx_thumbnail_cache_filename ON thumbnail_cache(cache_filename)`,
			`CREATE TABLE IF NOT EXISTS thumbnail_order (
				folder_path TEXT PRIMARY KEY,
				file_paths_json TEXT NOT NULL,
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
			)`,
		},
	},
	{
		version: 6,
		name:    "hash modification time",
		stmts: []string{
			`ALTER TABLE file_hashes ADD COLUMN file_mtime_at_hash INTEGER NOT NULL DEFAULT 0`,
		},
	},
}

func schemaVersion(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

// migrate brings the schema up to target and returns the resulting version.
func (d *Database) migrate(ctx context.Context, target int) (int, error) {
	if _, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := schemaVersion(ctx, d.db)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > currentSchemaVersion {
		return current, fmt.Errorf("database schema v%d is newer than this build (v%d)", current, currentSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current || m.version > target {
			continue
		}

		logging.Info("Migrating database to v%d: %s", m.version, m.name)
		err := d.Transaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.version)
			return err
		})
		if err != nil {
			return current, fmt.Errorf("migration v%d (%s): %w", m.version, m.name, err)
		}
		current = m.version
	}

	return current, nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"batch-renamer/internal/logging"
)

// defaultTaxonomy is seeded by EnsureDefaultTaxonomy.
var defaultTaxonomy = []struct {
	category MetadataCategory
	fields   []MetadataField
}{
	{
		category: MetadataCategory{Key: "basic", DisplayName: "Basic", SortOrder: 0},
		fields: []MetadataField{
			{Key: "title", DataType: "text"},
			{Key: "description", DataType: "text"},
			{Key: "keywords", DataType: "text"},
			{Key: "rating", DataType: "number"},
			{Key: "date_created", DataType: "datetime"},
		},
	},
	{
		category: MetadataCategory{Key: "image", DisplayName: "Image", SortOrder: 1},
		fields: []MetadataField{
			{Key: "width", DataType: "number"},
			{Key: "height", DataType: "number"},
			{Key: "format", DataType: "text"},
			{Key: "orientation", DataType: "number"},
		},
	},
	{
		category: MetadataCategory{Key: "camera", DisplayName: "Camera", SortOrder: 2},
		fields: []MetadataField{
			{Key: "camera_make", DataType: "text"},
			{Key: "camera_model", DataType: "text"},
			{Key: "lens_model", DataType: "text"},
			{Key: "iso", DataType: "number"},
			{Key: "exposure_time", DataType: "text"},
			{Key: "f_number", DataType: "number"},
		},
	},
	{
		category: MetadataCategory{Key: "video", DisplayName: "Video", SortOrder: 3},
		fields: []MetadataField{
			{Key: "duration", DataType: "number"},
			{Key: "frame_rate", DataType: "number"},
			{Key: "video_codec", DataType: "text"},
		},
	},
	{
		category: MetadataCategory{Key: "audio", DisplayName: "Audio", SortOrder: 4},
		fields: []MetadataField{
			{Key: "artist", DataType: "text"},
			{Key: "album", DataType: "text"},
			{Key: "album_artist", DataType: "text"},
			{Key: "genre", DataType: "text"},
			{Key: "year", DataType: "number"},
			{Key: "track", DataType: "number"},
			{Key: "disc", DataType: "number"},
			{Key: "composer", DataType: "text"},
		},
	},
}

// RegisterCategory creates or updates a taxonomy category and returns its id.
func (d *Database) RegisterCategory(ctx context.Context, key, displayName string, sortOrder int) (int64, error) {
	var id int64
	err := d.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = registerCategoryTx(ctx, tx, MetadataCategory{Key: key, DisplayName: displayName, SortOrder: sortOrder})
		return err
	})
	return id, err
}

func registerCategoryTx(ctx context.Context, tx *sql.Tx, c MetadataCategory) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metadata_categories (key, display_name, sort_order) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET display_name = excluded.display_name, sort_order = excluded.sort_order
	`, c.Key, c.DisplayName, c.SortOrder); err != nil {
		return 0, err
	}
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM metadata_categories WHERE key = ?", c.Key).Scan(&id)
	return id, err
}

// RegisterField creates or updates a field in an existing category.
func (d *Database) RegisterField(ctx context.Context, key, categoryKey, dataType string, sortOrder int) (int64, error) {
	var id int64
	err := d.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = registerFieldTx(ctx, tx, categoryKey, MetadataField{Key: key, DataType: dataType, SortOrder: sortOrder})
		return err
	})
	if err != nil {
		return 0, err
	}
	d.rememberField(MetadataField{ID: id, Key: key, CategoryKey: categoryKey, DataType: dataType, SortOrder: sortOrder})
	return id, nil
}

func registerFieldTx(ctx context.Context, tx *sql.Tx, categoryKey string, f MetadataField) (int64, error) {
	var categoryID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM metadata_categories WHERE key = ?", categoryKey).Scan(&categoryID); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("category %q: %w", categoryKey, ErrNotFound)
		}
		return 0, err
	}
	if f.DataType == "" {
		f.DataType = "text"
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metadata_fields (key, category_id, data_type, sort_order) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			category_id = excluded.category_id,
			data_type = excluded.data_type,
			sort_order = excluded.sort_order
	`, f.Key, categoryID, f.DataType, f.SortOrder); err != nil {
		return 0, err
	}
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM metadata_fields WHERE key = ?", f.Key).Scan(&id)
	return id, err
}

// EnsureDefaultTaxonomy seeds the built-in categories and fields. It is
// idempotent and runs in one transaction.
func (d *Database) EnsureDefaultTaxonomy(ctx context.Context) error {
	err := d.Transaction(ctx, func(tx *sql.Tx) error {
		for _, group := range defaultTaxonomy {
			if _, err := registerCategoryTx(ctx, tx, group.category); err != nil {
				return fmt.Errorf("category %s: %w", group.category.Key, err)
			}
			for i, f := range group.fields {
				f.SortOrder = i
				if _, err := registerFieldTx(ctx, tx, group.category.Key, f); err != nil {
					return fmt.Errorf("field %s: %w", f.Key, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return d.loadFields(ctx)
}

// loadFields refreshes the in-memory field registry.
func (d *Database) loadFields(ctx context.Context) error {
	fields, err := d.Fields(ctx)
	if err != nil {
		return err
	}
	d.fieldsMu.Lock()
	defer d.fieldsMu.Unlock()
	d.fields = make(map[string]MetadataField, len(fields))
	for _, f := range fields {
		d.fields[f.Key] = f
	}
	return nil
}

func (d *Database) rememberField(f MetadataField) {
	d.fieldsMu.Lock()
	defer d.fieldsMu.Unlock()
	d.fields[f.Key] = f
}

func (d *Database) field(key string) (MetadataField, bool) {
	d.fieldsMu.RLock()
	defer d.fieldsMu.RUnlock()
	f, ok := d.fields[key]
	return f, ok
}

// Fields returns every registered field ordered by category and position.
func (d *Database) Fields(ctx context.Context) ([]MetadataField, error) {
	if !d.readable("fields") {
		return nil, ErrStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT f.id, f.key, c.key, f.data_type, f.sort_order
		FROM metadata_fields f
		JOIN metadata_categories c ON c.id = f.category_id
		ORDER BY c.sort_order, f.sort_order, f.key
	`)
	if err != nil {
		return nil, classify("fields", err)
	}
	defer rows.Close()

	var fields []MetadataField
	for rows.Next() {
		var f MetadataField
		if err := rows.Scan(&f.ID, &f.Key, &f.CategoryKey, &f.DataType, &f.SortOrder); err != nil {
			return nil, classify("fields", err)
		}
		fields = append(fields, f)
	}
	return fields, classify("fields", rows.Err())
}

// PutStructured stores one structured value. A field key that is not
// registered is logged and ignored: it returns false with a nil error.
func (d *Database) PutStructured(ctx context.Context, pathID int64, fieldKey, value string) (bool, error) {
	f, ok := d.field(fieldKey)
	if !ok {
		logging.Warn("%v: %q (path %d), value not stored", ErrUnknownField, fieldKey, pathID)
		return false, nil
	}
	_, err := d.exec(ctx, "put_structured", `
		INSERT INTO file_metadata_structured (path_id, field_id, field_value, updated_at)
		VALUES (?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(path_id, field_id) DO UPDATE SET
			field_value = excluded.field_value,
			updated_at = excluded.updated_at
	`, pathID, f.ID, value)
	if err != nil {
		return false, err
	}
	return true, nil
}

// PutStructuredBatch stores several values of one file in one transaction
// and returns how many were stored. Unknown fields are logged and skipped.
func (d *Database) PutStructuredBatch(ctx context.Context, pathID int64, values map[string]string) int {
	if len(values) == 0 {
		return 0
	}

	stored := 0
	err := d.Transaction(ctx, func(tx *sql.Tx) error {
		stored = 0
		for key, value := range values {
			f, ok := d.field(key)
			if !ok {
				logging.Warn("%v: %q (path %d), value not stored", ErrUnknownField, key, pathID)
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO file_metadata_structured (path_id, field_id, field_value, updated_at)
				VALUES (?, ?, ?, strftime('%s', 'now'))
				ON CONFLICT(path_id, field_id) DO UPDATE SET
					field_value = excluded.field_value,
					updated_at = excluded.updated_at
			`, pathID, f.ID, value); err != nil {
				logging.Warn("structured value %s for path %d skipped: %v", key, pathID, err)
				continue
			}
			stored++
		}
		return nil
	})
	if err != nil {
		if !IsUnavailable(err) {
			logging.Warn("structured batch for path %d failed: %v", pathID, err)
		}
		return 0
	}
	return stored
}

// GetStructured returns every structured value of pathID keyed by field.
func (d *Database) GetStructured(ctx context.Context, pathID int64) map[string]string {
	result := make(map[string]string)
	if !d.readable("get_structured") {
		return result
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("get_structured", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT f.key, COALESCE(s.field_value, '')
		FROM file_metadata_structured s
		JOIN metadata_fields f ON f.id = s.field_id
		WHERE s.path_id = ?
	`, pathID)
	if err != nil {
		logging.Debug("get structured %d: %v", pathID, classify("get_structured", err))
		return result
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err = rows.Scan(&key, &value); err != nil {
			return result
		}
		result[key] = value
	}
	err = rows.Err()
	return result
}

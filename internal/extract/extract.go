package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"batch-renamer/internal/filesystem"
	"batch-renamer/internal/logging"
	"batch-renamer/internal/mediatypes"
	"batch-renamer/internal/metrics"
)

// Extractor reads metadata for the file kinds it supports.
type Extractor interface {
	Name() string
	Supports(kind mediatypes.Kind) bool
	// Extract adds its values to data. extended asks for the slower, more
	// complete set.
	Extract(ctx context.Context, path string, extended bool, data map[string]any) error
}

// DefaultExtractors returns the image, audio and video extractors.
func DefaultExtractors() []Extractor {
	return []Extractor{
		ImageExtractor{},
		AudioExtractor{},
		&VideoExtractor{},
	}
}

// Extract returns the metadata of path. File facts are always present; an
// extractor failure is logged and leaves its keys out. The error is non-nil
// only when the file cannot be stat'ed.
func Extract(ctx context.Context, path string, extended bool, extractors []Extractor) (map[string]any, error) {
	facts, ok := filesystem.Facts(path)
	if !ok {
		return nil, fmt.Errorf("extract %s: file not found", path)
	}
	if facts.IsDir {
		return nil, fmt.Errorf("extract %s: is a directory", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	kind := mediatypes.KindOf(path)
	data := map[string]any{
		"filename":  filepath.Base(path),
		"extension": ext,
		"size":      facts.Size,
		"modified":  facts.ModTime.UTC().Format(time.RFC3339),
		"kind":      string(kind),
	}
	if mime := mediatypes.MIMEOf(path); mime != "" {
		data["mime_type"] = mime
	}

	for _, e := range extractors {
		if !e.Supports(kind) {
			continue
		}
		if ctx.Err() != nil {
			return data, ctx.Err()
		}
		if err := e.Extract(ctx, path, extended, data); err != nil {
			metrics.MetadataExtractionsTotal.WithLabelValues(e.Name(), "failed").Inc()
			logging.Debug("%s extractor failed for %s: %v", e.Name(), path, err)
			continue
		}
		metrics.MetadataExtractionsTotal.WithLabelValues(e.Name(), "success").Inc()
	}
	return data, nil
}

// structuredKeys are the metadata keys mirrored into structured values.
// They match the fields seeded by the default taxonomy.
var structuredKeys = map[string]bool{
	"title":        true,
	"width":        true,
	"height":       true,
	"format":       true,
	"orientation":  true,
	"artist":       true,
	"album":        true,
	"album_artist": true,
	"genre":        true,
	"year":         true,
	"track":        true,
	"disc":         true,
	"composer":     true,
	"duration":     true,
	"frame_rate":   true,
	"video_codec":  true,
}

// Structured returns the values of data that map onto structured fields,
// formatted as strings. Empty and zero values are left out.
func Structured(data map[string]any) map[string]string {
	out := make(map[string]string)
	for key, v := range data {
		if !structuredKeys[key] {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case int:
			if val != 0 {
				s = fmt.Sprintf("%d", val)
			}
		case int64:
			if val != 0 {
				s = fmt.Sprintf("%d", val)
			}
		case float64:
			if val != 0 {
				s = strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", val), "0"), ".")
			}
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out[key] = s
		}
	}
	return out
}

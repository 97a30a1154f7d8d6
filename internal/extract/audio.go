package extract

import (
	"context"
	"fmt"

	"batch-renamer/internal/filesystem"
	"batch-renamer/internal/mediatypes"

	"github.com/dhowden/tag"
)

// AudioExtractor reads ID3, MP4, FLAC and Ogg tags.
type AudioExtractor struct{}

func (AudioExtractor) Name() string { return "audio" }

func (AudioExtractor) Supports(kind mediatypes.Kind) bool {
	return kind == mediatypes.Audio
}

func (AudioExtractor) Extract(_ context.Context, path string, extended bool, data map[string]any) error {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return fmt.Errorf("failed to read tags: %w", err)
	}

	setString(data, "title", m.Title())
	setString(data, "artist", m.Artist())
	setString(data, "album", m.Album())
	setString(data, "album_artist", m.AlbumArtist())
	setString(data, "genre", m.Genre())
	setString(data, "composer", m.Composer())
	if m.Year() > 0 {
		data["year"] = m.Year()
	}

	track, trackTotal := m.Track()
	disc, discTotal := m.Disc()
	if track > 0 {
		data["track"] = track
	}
	if disc > 0 {
		data["disc"] = disc
	}

	if extended {
		data["tag_format"] = string(m.Format())
		data["file_type"] = string(m.FileType())
		if trackTotal > 0 {
			data["track_total"] = trackTotal
		}
		if discTotal > 0 {
			data["disc_total"] = discTotal
		}
		setString(data, "comment", m.Comment())
		data["has_picture"] = m.Picture() != nil
	}
	return nil
}

func setString(data map[string]any, key, value string) {
	if value != "" {
		data[key] = value
	}
}

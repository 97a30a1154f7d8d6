package extract

import (
	"context"
	"image"
	"math"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"batch-renamer/internal/filesystem"
	"batch-renamer/internal/mediatypes"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageExtractor reads image dimensions and format from the file header.
type ImageExtractor struct{}

func (ImageExtractor) Name() string { return "image" }

func (ImageExtractor) Supports(kind mediatypes.Kind) bool {
	return kind == mediatypes.Image
}

func (ImageExtractor) Extract(_ context.Context, path string, extended bool, data map[string]any) error {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return err
	}

	data["width"] = cfg.Width
	data["height"] = cfg.Height
	data["format"] = format

	if extended && cfg.Width > 0 && cfg.Height > 0 {
		data["megapixels"] = math.Round(float64(cfg.Width*cfg.Height)/1e4) / 100
		data["aspect_ratio"] = math.Round(float64(cfg.Width)/float64(cfg.Height)*1000) / 1000
		switch {
		case cfg.Width > cfg.Height:
			data["layout"] = "landscape"
		case cfg.Width < cfg.Height:
			data["layout"] = "portrait"
		default:
			data["layout"] = "square"
		}
	}
	return nil
}

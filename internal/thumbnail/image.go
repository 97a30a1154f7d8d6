package thumbnail

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"

	"batch-renamer/internal/filesystem"
	"batch-renamer/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageDimension is the maximum width or height decoded at full size.
	// Larger images are downscaled right after decoding.
	MaxImageDimension = 4096

	// MaxImagePixels is the maximum total pixels (width * height) kept after
	// decoding. 20MP is about 80MB in RGBA.
	MaxImagePixels = 20_000_000
)

// imageDimensions returns image dimensions without fully decoding the image.
func imageDimensions(path string) (width, height int, err error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, err
	}
	return config.Width, config.Height, nil
}

// constrain returns the target size for a width x height image so that
// neither side exceeds maxDimension and the area stays under maxPixels.
func constrain(width, height, maxDimension, maxPixels int) (int, int) {
	targetWidth, targetHeight := width, height

	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}

	if targetPixels := targetWidth * targetHeight; targetPixels > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(targetPixels))
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}
	return max(targetWidth, 1), max(targetHeight, 1)
}

// loadImageConstrained decodes path with EXIF auto-orientation and
// downscales it when it exceeds maxDimension or maxPixels.
func loadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, error) {
	width, height, err := imageDimensions(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		logging.Debug("Could not get image dimensions for %s: %v, decoding directly", path, err)
		return imaging.Open(path, imaging.AutoOrientation(true))
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return img, nil
	}

	targetWidth, targetHeight := constrain(width, height, maxDimension, maxPixels)
	logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, width, height, targetWidth, targetHeight)
	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}

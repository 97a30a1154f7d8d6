package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"batch-renamer/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

// vipsMu is held for reading for the whole of every libvips operation and
// for writing by InitVips and ShutdownVips, so libvips is never shut down
// under a live image reference.
var (
	vipsMu        sync.RWMutex
	vipsAvailable bool
)

var errVipsUnavailable = errors.New("libvips is not initialized")

// InitVips starts libvips with conservative memory settings and routes its
// log output through the application logger at the current level. Call once
// at startup; ImageProducer falls back to pure Go decoding without it.
func InitVips() {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	if vipsAvailable {
		return
	}

	vipsLevel := vips.LogLevelWarning
	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLevel = vips.LogLevelInfo
	case logging.LevelWarn:
		vipsLevel = vips.LogLevelError
	case logging.LevelError:
		vipsLevel = vips.LogLevelCritical
	}

	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, vipsLevel)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
}

// ShutdownVips releases libvips resources. It waits for in-flight libvips
// loads to finish.
func ShutdownVips() {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	if vipsAvailable {
		vips.Shutdown()
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// VipsAvailable reports whether libvips is initialized.
func VipsAvailable() bool {
	vipsMu.RLock()
	defer vipsMu.RUnlock()
	return vipsAvailable
}

// loadWithVips decodes path with shrink-on-load straight to a thumbnail
// that fits in size x size. It returns errVipsUnavailable when libvips is
// not running.
func loadWithVips(path string, size int) (image.Image, error) {
	vipsMu.RLock()
	defer vipsMu.RUnlock()
	if !vipsAvailable {
		return nil, errVipsUnavailable
	}

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	logging.Debug("Vips loaded %s: %dx%d, shrinking to fit %d", filepath.Base(path), ref.Width(), ref.Height(), size)

	if err := ref.Thumbnail(size, size, vips.InterestingNone); err != nil {
		return nil, fmt.Errorf("vips resize failed: %w", err)
	}

	buf, _, err := ref.ExportJpeg(&vips.JpegExportParams{Quality: 95, OptimizeCoding: true})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode vips output: %w", err)
	}
	return img, nil
}

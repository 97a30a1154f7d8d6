package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"batch-renamer/internal/logging"
)

// Set at link time with -ldflags "-X batch-renamer/internal/startup.Version=..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the link-time build information.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Features reports which optional components could be enabled after
// directory setup.
type Features struct {
	Thumbnails bool
	Watcher    bool
	FFmpeg     bool
}

// Prepare prints the banner, logs the effective configuration and creates the
// directories it names. The database directory is required; a cache
// directory that cannot be written disables thumbnails instead of failing.
func Prepare(cfg *Config) (Features, error) {
	printBanner()
	logSystemInfo()
	LogEffectiveConfig(cfg)

	section("DIRECTORIES")
	logging.Info("  Database:  %s", cfg.DatabaseDir)
	logging.Info("  Cache:     %s", cfg.CacheDir)

	var features Features

	if err := ensureDirectory(cfg.DatabaseDir, "database"); err != nil {
		return features, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(cfg.DatabaseDir); err != nil {
		return features, fmt.Errorf("database directory %s is not writable: %w", cfg.DatabaseDir, err)
	}
	logging.Info("  [OK] Database directory is writable")

	if cfg.Thumbnails.Enabled {
		features.Thumbnails = prepareOptionalDir(cfg.ThumbnailDir, "thumbnail cache")
	}

	if cfg.Watch.Enabled && cfg.MediaDir != "" {
		logging.Info("  Media:     %s", cfg.MediaDir)
		if err := ensureDirectory(cfg.MediaDir, "media"); err != nil {
			logging.Warn("  Media directory unusable, watcher disabled: %v", err)
		} else {
			features.Watcher = true
		}
	}

	if features.Thumbnails {
		if version, err := checkFFmpeg(); err != nil {
			logging.Warn("  %v; video thumbnails will fail as unsupported", err)
		} else {
			logging.Debug("  %s", version)
			features.FFmpeg = true
		}
	}

	logFeatures(features, cfg.Metrics.Enabled)
	return features, nil
}

// prepareOptionalDir creates and probes a directory whose absence only
// disables a feature.
func prepareOptionalDir(path, name string) bool {
	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("  Cannot create %s directory %s: %v", name, path, err)
		return false
	}
	if err := testWriteAccess(path); err != nil {
		logging.Warn("  %s directory %s is not writable: %v", name, path, err)
		return false
	}
	logging.Debug("  [OK] %s directory ready: %s", name, path)
	return true
}

func ensureDirectory(path, name string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("  [OK] Created %s directory %s", name, path)
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("%s exists but is not a directory", path)
	}
	return nil
}

// testWriteAccess creates and removes a probe file in dir.
func testWriteAccess(dir string) error {
	probe, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove write probe %s: %v", name, err)
	}
	return nil
}

// checkFFmpeg returns the first line of `ffmpeg -version`.
func checkFFmpeg() (string, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return "", errors.New("ffmpeg not found in PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "ffmpeg", "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg -version failed: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

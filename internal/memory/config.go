package memory

import (
	"math"
	"os"
	"runtime/debug"

	"github.com/dustin/go-humanize"

	"batch-renamer/internal/logging"
)

// DefaultMemoryRatio is the share of the configured limit handed to the Go
// heap. The remainder covers libvips, ffmpeg children and goroutine stacks.
const DefaultMemoryRatio = 0.85

// LimitResult describes how the soft memory limit was applied.
type LimitResult struct {
	// Configured indicates whether a soft limit is in effect
	Configured bool

	// Source is "GOMEMLIMIT", "config", or "none"
	Source string

	// RequestedLimit is the configured limit in bytes (0 if not set)
	RequestedLimit int64

	// GoMemLimit is the soft limit handed to the runtime
	GoMemLimit int64

	// Ratio is the ratio applied to RequestedLimit (0 if not applicable)
	Ratio float64
}

// ApplyLimit sets the runtime soft memory limit from configuration.
// An explicit GOMEMLIMIT environment variable always wins. A ratio outside
// (0, 1] falls back to DefaultMemoryRatio.
func ApplyLimit(limitBytes int64, ratio float64) LimitResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := LimitResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	if limitBytes <= 0 {
		logging.Debug("memory.limit_bytes not set, GOMEMLIMIT will not be configured")
		return LimitResult{Source: "none"}
	}

	if ratio <= 0 || ratio > 1.0 {
		if ratio != 0 {
			logging.Warn("Memory ratio %.2f out of range (0.0-1.0), using default %.2f", ratio, DefaultMemoryRatio)
		}
		ratio = DefaultMemoryRatio
	}

	goMemLimit := int64(float64(limitBytes) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s)",
		humanize.IBytes(uint64(goMemLimit)), ratio*100, humanize.IBytes(uint64(limitBytes)))

	return LimitResult{
		Configured:     true,
		Source:         "config",
		RequestedLimit: limitBytes,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

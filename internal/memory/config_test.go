package memory

import (
	"os"
	"runtime/debug"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LimitBytes != 0 {
		t.Errorf("Expected LimitBytes to be 0, got %d", cfg.LimitBytes)
	}
	if cfg.HighWaterMark != 0.7 {
		t.Errorf("Expected HighWaterMark to be 0.7, got %f", cfg.HighWaterMark)
	}
	if cfg.CriticalWaterMark != 0.85 {
		t.Errorf("Expected CriticalWaterMark to be 0.85, got %f", cfg.CriticalWaterMark)
	}
	if cfg.CheckInterval != 5*time.Second {
		t.Errorf("Expected CheckInterval to be 5s, got %v", cfg.CheckInterval)
	}
	if cfg.HighWaterMark >= cfg.CriticalWaterMark {
		t.Error("HighWaterMark should be less than CriticalWaterMark")
	}
}

// restoreMemoryLimit resets the runtime soft limit after a test changes it.
func restoreMemoryLimit(t *testing.T) {
	t.Helper()
	original := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(original) })
}

func TestApplyLimit(t *testing.T) {
	if os.Getenv("GOMEMLIMIT") != "" {
		t.Skip("GOMEMLIMIT set in the test environment")
	}

	tests := []struct {
		name       string
		limit      int64
		ratio      float64
		configured bool
		source     string
		wantLimit  int64
		wantRatio  float64
	}{
		{
			name:   "no limit",
			limit:  0,
			source: "none",
		},
		{
			name:       "default ratio",
			limit:      1000 * 1024 * 1024,
			ratio:      0,
			configured: true,
			source:     "config",
			wantLimit:  int64(float64(1000*1024*1024) * DefaultMemoryRatio),
			wantRatio:  DefaultMemoryRatio,
		},
		{
			name:       "custom ratio",
			limit:      1000 * 1024 * 1024,
			ratio:      0.5,
			configured: true,
			source:     "config",
			wantLimit:  500 * 1024 * 1024,
			wantRatio:  0.5,
		},
		{
			name:       "ratio out of range falls back",
			limit:      1000 * 1024 * 1024,
			ratio:      1.5,
			configured: true,
			source:     "config",
			wantLimit:  int64(float64(1000*1024*1024) * DefaultMemoryRatio),
			wantRatio:  DefaultMemoryRatio,
		},
		{
			name:   "negative limit ignored",
			limit:  -1,
			source: "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreMemoryLimit(t)

			result := ApplyLimit(tt.limit, tt.ratio)
			if result.Configured != tt.configured {
				t.Errorf("Configured = %v, want %v", result.Configured, tt.configured)
			}
			if result.Source != tt.source {
				t.Errorf("Source = %q, want %q", result.Source, tt.source)
			}
			if result.GoMemLimit != tt.wantLimit {
				t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, tt.wantLimit)
			}
			if result.Ratio != tt.wantRatio {
				t.Errorf("Ratio = %f, want %f", result.Ratio, tt.wantRatio)
			}
			if tt.configured {
				if got := debug.SetMemoryLimit(-1); got != tt.wantLimit {
					t.Errorf("runtime memory limit = %d, want %d", got, tt.wantLimit)
				}
			}
		})
	}
}

func TestApplyLimit_EnvironmentWins(t *testing.T) {
	restoreMemoryLimit(t)
	t.Setenv("GOMEMLIMIT", "512MiB")

	result := ApplyLimit(1024*1024*1024, 0.5)
	if result.Source != "GOMEMLIMIT" {
		t.Errorf("Source = %q, want GOMEMLIMIT", result.Source)
	}
	if result.RequestedLimit != 0 {
		t.Errorf("RequestedLimit = %d, want 0 when GOMEMLIMIT is set", result.RequestedLimit)
	}
}

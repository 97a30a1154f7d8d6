package workers

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCount(t *testing.T) {
	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		configured int
		multiplier float64
		limit      int
		minExpect  int
		maxExpect  int
	}{
		{
			name:       "CPU-bound task (1.0x multiplier)",
			multiplier: 1.0,
			minExpect:  1,
			maxExpect:  availableCPU,
		},
		{
			name:       "I/O-bound task (2.0x multiplier)",
			multiplier: 2.0,
			minExpect:  1,
			maxExpect:  availableCPU * 2,
		},
		{
			name:       "Mixed task (1.5x multiplier)",
			multiplier: 1.5,
			minExpect:  1,
			maxExpect:  int(float64(availableCPU) * 1.5),
		},
		{
			name:       "With limit lower than calculated",
			multiplier: 2.0,
			limit:      2,
			minExpect:  1,
			maxExpect:  2,
		},
		{
			name:       "Very low multiplier",
			multiplier: 0.1,
			minExpect:  1,
			maxExpect:  max(1, int(float64(availableCPU)*0.1)),
		},
		{
			name:       "Configured size wins",
			configured: 8,
			multiplier: 1.0,
			minExpect:  8,
			maxExpect:  8,
		},
		{
			name:       "Configured size capped by limit",
			configured: 20,
			multiplier: 1.0,
			limit:      10,
			minExpect:  10,
			maxExpect:  10,
		},
		{
			name:       "Negative configured size ignored",
			configured: -5,
			multiplier: 1.0,
			minExpect:  1,
			maxExpect:  availableCPU,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.configured, tt.multiplier, tt.limit)

			if got < tt.minExpect {
				t.Errorf("Count(%d, %v, %d) = %d, expected >= %d", tt.configured, tt.multiplier, tt.limit, got, tt.minExpect)
			}
			if got > tt.maxExpect {
				t.Errorf("Count(%d, %v, %d) = %d, expected <= %d", tt.configured, tt.multiplier, tt.limit, got, tt.maxExpect)
			}
		})
	}
}

func TestHelpersMatchCount(t *testing.T) {
	if got, want := ForCPU(0, 0), Count(0, 1.0, 0); got != want {
		t.Errorf("ForCPU() = %d, want %d", got, want)
	}
	if got, want := ForIO(0, 0), Count(0, 2.0, 0); got != want {
		t.Errorf("ForIO() = %d, want %d", got, want)
	}
	if got, want := ForMixed(0, 0), Count(0, 1.5, 0); got != want {
		t.Errorf("ForMixed() = %d, want %d", got, want)
	}
	if got := ForMixed(3, 0); got != 3 {
		t.Errorf("ForMixed(3, 0) = %d, want 3", got)
	}
	if ForCPU(0, 0) > ForIO(0, 0) {
		t.Error("CPU-bound pool should not be larger than I/O-bound pool")
	}
}

func TestRun(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	var mu sync.Mutex
	seen := make(map[int]bool)
	var concurrent, peak atomic.Int32

	Run(context.Background(), 4, items, func(_ context.Context, n int) {
		c := concurrent.Add(1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		mu.Lock()
		seen[n] = true
		mu.Unlock()
		concurrent.Add(-1)
	})

	if len(seen) != len(items) {
		t.Errorf("Run processed %d items, want %d", len(seen), len(items))
	}
	if peak.Load() > 4 {
		t.Errorf("Run used %d concurrent workers, want <= 4", peak.Load())
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	Run(ctx, 2, []string{"a", "b", "c", "d"}, func(context.Context, string) {
		calls.Add(1)
	})

	if calls.Load() != 0 {
		t.Errorf("Run made %d calls with a cancelled context, want 0", calls.Load())
	}
}

func TestRunEmpty(_ *testing.T) {
	Run(context.Background(), 4, nil, func(context.Context, int) {})
}

func BenchmarkCount(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Count(0, 1.5, 0)
	}
}

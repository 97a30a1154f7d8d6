package memory

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		LimitBytes:        100 * 1024 * 1024,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     time.Hour, // tests drive observe directly
	}
}

func TestNewMonitor(t *testing.T) {
	t.Run("With explicit limit", func(t *testing.T) {
		config := testConfig()
		monitor := NewMonitor(config)
		if monitor == nil {
			t.Fatal("NewMonitor returned nil")
		}
		if monitor.limit != config.LimitBytes {
			t.Errorf("Expected limit %d, got %d", config.LimitBytes, monitor.limit)
		}
	})

	t.Run("Zero interval gets default", func(t *testing.T) {
		config := testConfig()
		config.CheckInterval = 0
		monitor := NewMonitor(config)
		if monitor.config.CheckInterval != DefaultConfig().CheckInterval {
			t.Errorf("CheckInterval = %v, want default", monitor.config.CheckInterval)
		}
	})
}

func TestMonitorObserve_PauseAndResume(t *testing.T) {
	monitor := NewMonitor(testConfig())
	limit := uint64(monitor.limit)

	monitor.observe(limit / 2)
	if monitor.IsPaused() {
		t.Fatal("monitor paused at 50% usage")
	}

	monitor.observe(limit * 9 / 10)
	if !monitor.IsPaused() {
		t.Fatal("monitor should pause above the critical watermark")
	}

	// Between the watermarks the pause holds.
	monitor.observe(limit * 8 / 10)
	if !monitor.IsPaused() {
		t.Fatal("monitor resumed before dropping under the high watermark")
	}

	monitor.observe(limit / 2)
	if monitor.IsPaused() {
		t.Fatal("monitor should resume under the high watermark")
	}

	stats := monitor.Stats()
	if stats.Alloc != limit/2 {
		t.Errorf("Stats().Alloc = %d, want %d", stats.Alloc, limit/2)
	}
	if stats.Usage < 0.49 || stats.Usage > 0.51 {
		t.Errorf("Stats().Usage = %f, want ~0.5", stats.Usage)
	}
}

func TestMonitorWaitIfPaused_ReleasedOnResume(t *testing.T) {
	monitor := NewMonitor(testConfig())
	limit := uint64(monitor.limit)
	monitor.observe(limit)

	released := make(chan bool, 1)
	go func() {
		released <- monitor.WaitIfPaused(context.Background())
	}()

	select {
	case <-released:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	monitor.observe(0)

	select {
	case ok := <-released:
		if !ok {
			t.Error("WaitIfPaused returned false after resume")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after resume")
	}
}

func TestMonitorWaitIfPaused_StopAndContext(t *testing.T) {
	monitor := NewMonitor(testConfig())
	monitor.observe(uint64(monitor.limit))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if monitor.WaitIfPaused(ctx) {
		t.Error("WaitIfPaused should return false when the context expires")
	}

	monitor.Stop()
	monitor.Stop() // idempotent
	if monitor.WaitIfPaused(context.Background()) {
		t.Error("WaitIfPaused should return false after Stop")
	}
}

func TestMonitorNil(t *testing.T) {
	var monitor *Monitor
	if !monitor.WaitIfPaused(context.Background()) {
		t.Error("nil monitor should never block")
	}
	if monitor.IsPaused() {
		t.Error("nil monitor should never report paused")
	}
}

func TestMonitorStartStop(_ *testing.T) {
	config := testConfig()
	config.CheckInterval = 10 * time.Millisecond

	monitor := NewMonitor(config)
	monitor.Start()
	time.Sleep(30 * time.Millisecond)
	monitor.Stop()
}

func TestMonitorConcurrency(_ *testing.T) {
	config := testConfig()
	config.CheckInterval = 5 * time.Millisecond

	monitor := NewMonitor(config)
	monitor.Start()
	defer monitor.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				monitor.IsPaused()
				monitor.Stats()
				monitor.WaitIfPaused(context.Background())
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()
}

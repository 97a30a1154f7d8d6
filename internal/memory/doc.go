// Package memory keeps thumbnail generation inside a memory budget.
//
// Decoding full-size images and video frames is the only allocation-heavy
// work the cache service does. [ApplyLimit] hands a soft limit to the Go
// runtime (an explicit GOMEMLIMIT always wins), and a [Monitor] samples the
// heap on an interval. When usage crosses the critical watermark the monitor
// pauses, and pipeline workers block in [Monitor.WaitIfPaused] before
// picking up the next job until usage falls back under the high watermark.
//
//	memory.ApplyLimit(cfg.Memory.LimitBytes, cfg.Memory.Ratio)
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
package memory

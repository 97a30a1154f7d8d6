package metrics

import (
	"time"

	"batch-renamer/internal/logging"
)

// Stats is a point-in-time view reported by a StatsProvider.
// Nil maps and negative counts are left untouched by the collector.
type Stats struct {
	// Records holds row counts per durable table
	Records map[string]int64
	// DBFileSizes holds sizes of the main, wal and shm database files
	DBFileSizes map[string]int64
	// ThumbnailCount and ThumbnailBytes describe the on-disk artifact cache
	ThumbnailCount int64
	ThumbnailBytes int64
}

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Collector periodically collects and updates metrics
type Collector struct {
	providers []StatsProvider
	interval  time.Duration
	stopChan  chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(interval time.Duration, providers ...StatsProvider) *Collector {
	return &Collector{
		providers: providers,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	for _, p := range c.providers {
		if p == nil {
			continue
		}
		apply(p.GetStats())
	}
}

func apply(stats Stats) {
	for table, n := range stats.Records {
		DBRecordsTotal.WithLabelValues(table).Set(float64(n))
	}
	for file, size := range stats.DBFileSizes {
		DBSizeBytes.WithLabelValues(file).Set(float64(size))
	}
	if stats.ThumbnailCount >= 0 && stats.ThumbnailBytes >= 0 && (stats.ThumbnailCount > 0 || stats.ThumbnailBytes > 0) {
		ThumbnailCacheCount.Set(float64(stats.ThumbnailCount))
		ThumbnailCacheSize.Set(float64(stats.ThumbnailBytes))
	}

	logging.Debug("Metrics collected: tables=%d, db files=%d, thumbnails=%d",
		len(stats.Records), len(stats.DBFileSizes), stats.ThumbnailCount)
}

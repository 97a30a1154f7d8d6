package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"batch-renamer/internal/database"
	"batch-renamer/internal/filesystem"
	"batch-renamer/internal/handlers"
	"batch-renamer/internal/logging"
	"batch-renamer/internal/memory"
	"batch-renamer/internal/metrics"
	"batch-renamer/internal/middleware"
	"batch-renamer/internal/startup"
	"batch-renamer/internal/thumbnail"
	"batch-renamer/internal/watch"
)

// services holds everything main starts so shutdown can stop it in order.
type services struct {
	db        *database.Database
	artifacts *thumbnail.ArtifactCache
	pipeline  *thumbnail.Pipeline
	watcher   *watch.Watcher
	monitor   *memory.Monitor
	collector *metrics.Collector
	cancel    context.CancelFunc
}

var configPath string

var rootCmd = &cobra.Command{
	Use:          "batch-renamer",
	Short:        "File identity cache and thumbnail service",
	Version:      startup.Version,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		serve(configPath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default $BATCHRENAMER_CONFIG, ./config.yaml or /etc/batch-renamer/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) {
	startTime := time.Now()

	config, err := startup.LoadConfig(configPath)
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	logging.SetLevel(config.Log.Level)
	if config.Log.File != "" {
		logging.SetOutputFile(config.Log.File, config.Log.MaxSizeMB, config.Log.MaxBackups, config.Log.MaxAgeDays)
	}

	features, err := startup.Prepare(config)
	if err != nil {
		startup.LogFatal("Startup error: %v", err)
	}

	volumes := map[string]string{
		"cache":    config.CacheDir,
		"database": config.DatabaseDir,
	}
	if config.MediaDir != "" {
		volumes["media"] = config.MediaDir
	}
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(volumes))

	startup.LogMemoryConfig(memory.ApplyLimit(config.Memory.LimitBytes, config.Memory.Ratio))
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	ctx, cancel := context.WithCancel(context.Background())
	svc := &services{cancel: cancel}

	dbStart := time.Now()
	db, info, err := database.New(ctx, config.DatabasePath, &database.Options{
		MmapDisabled:      config.Database.MmapDisabled,
		HashCacheSize:     config.Cache.HashCapacity,
		MetadataCacheSize: config.Cache.MetadataCapacity,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	svc.db = db
	startup.LogDatabaseInit(info, time.Since(dbStart))

	if state := db.LoadState(ctx); len(state) > 0 {
		logging.Info("  Restored %d session values", len(state))
	}

	svc.monitor = memory.NewMonitor(memory.Config{
		LimitBytes:        config.Memory.LimitBytes,
		HighWaterMark:     memory.DefaultConfig().HighWaterMark,
		CriticalWaterMark: memory.DefaultConfig().CriticalWaterMark,
		CheckInterval:     memory.DefaultConfig().CheckInterval,
	})
	svc.monitor.Start()

	if features.Thumbnails {
		startThumbnails(ctx, svc, config)
	} else {
		startup.LogThumbnailInit(false, 0, 0, false)
	}

	if features.Watcher {
		startWatcher(ctx, svc, config.MediaDir)
	}

	if config.Metrics.Enabled {
		providers := []metrics.StatsProvider{db}
		if svc.artifacts != nil {
			providers = append(providers, svc.artifacts)
		}
		svc.collector = metrics.NewCollector(config.Metrics.Interval, providers...)
		svc.collector.Start()
	}

	h := handlers.New(db, svc.pipeline, svc.artifacts)
	router := h.Router(config.Metrics.Enabled)
	if config.Metrics.Enabled {
		router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}
	startup.LogHTTPRoutes(router)

	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.AccessLog(middleware.DefaultAccessLogConfig())(router),
	)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan struct{})
	go handleShutdown(srv, svc, config.Thumbnails.ShutdownTimeout, done)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.Metrics.Enabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func startThumbnails(ctx context.Context, svc *services, config *startup.Config) {
	if config.Thumbnails.UseVips {
		thumbnail.InitVips()
	}

	artifacts, err := thumbnail.NewArtifactCache(config.ThumbnailDir, svc.db, config.Thumbnails.MemoryCapacity)
	if err != nil {
		logging.Warn("Thumbnail cache unavailable: %v", err)
		startup.LogThumbnailInit(false, 0, 0, false)
		return
	}
	svc.artifacts = artifacts

	svc.pipeline = thumbnail.NewPipeline(artifacts, thumbnail.PipelineConfig{
		Workers: config.Thumbnails.Workers,
		Size:    config.Thumbnails.Size,
		Monitor: svc.monitor,
	})
	svc.pipeline.Start()
	startup.LogThumbnailInit(true, svc.pipeline.Stats().Workers, svc.pipeline.Size(), thumbnail.VipsAvailable())

	if config.Thumbnails.CleanupInterval > 0 {
		go runCleanup(ctx, artifacts, config.Thumbnails.CleanupInterval)
	}
}

// runCleanup removes orphaned artifact files on an interval.
func runCleanup(ctx context.Context, artifacts *thumbnail.ArtifactCache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, freed, err := artifacts.Cleanup(ctx)
			if err != nil {
				logging.Warn("Thumbnail cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				logging.Info("Thumbnail cleanup removed %d orphaned files (%s)", removed, humanize.IBytes(uint64(freed)))
			}
		}
	}
}

func startWatcher(ctx context.Context, svc *services, root string) {
	// A nil *ArtifactCache must not become a non-nil interface.
	var artifacts watch.ArtifactInvalidator
	if svc.artifacts != nil {
		artifacts = svc.artifacts
	}

	w, err := watch.New(svc.db, artifacts)
	if err != nil {
		logging.Warn("Filesystem watcher unavailable: %v", err)
		return
	}
	dirs, err := w.Add(root)
	if err != nil {
		logging.Warn("Failed to watch %s: %v", root, err)
		_ = w.Stop()
		return
	}
	w.Start(ctx)
	svc.watcher = w
	startup.LogWatcherInit(root, dirs)
}

func handleShutdown(srv *http.Server, svc *services, pipelineTimeout time.Duration, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if svc.watcher != nil {
		startup.LogShutdownStep("Stopping filesystem watcher")
		if err := svc.watcher.Stop(); err != nil {
			logging.Warn("Watcher shutdown error: %v", err)
		}
		startup.LogShutdownStepComplete("Filesystem watcher stopped")
	}

	if svc.pipeline != nil {
		startup.LogShutdownStep("Stopping thumbnail pipeline")
		if svc.pipeline.Stop(pipelineTimeout) {
			startup.LogShutdownStepComplete("Thumbnail pipeline stopped")
			thumbnail.ShutdownVips()
		} else {
			// Stragglers may still hold libvips images; leave the library to
			// process exit.
			logging.Warn("  Thumbnail workers did not finish within %v; in-flight results were discarded", pipelineTimeout)
		}
	}

	svc.cancel()
	svc.monitor.Stop()
	if svc.collector != nil {
		svc.collector.Stop()
	}

	startup.LogShutdownStep("Closing database")
	if err := svc.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
	logging.Close()
}

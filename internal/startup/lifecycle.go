package startup

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"batch-renamer/internal/database"
	"batch-renamer/internal/logging"
	"batch-renamer/internal/memory"
)

const rule = "------------------------------------------------------------"

// section starts a titled block of startup output.
func section(title string) {
	logging.Info("")
	logging.Info(rule)
	logging.Info("%s", title)
	logging.Info(rule)
}

func onOff(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func printBanner() {
	fmt.Println(rule + `
    ____        __       __       ____
   / __ )____ _/ /______/ /_     / __ \___  ____  ____ _____ ___  ___  _____
  / __  / __ '/ __/ ___/ __ \   / /_/ / _ \/ __ \/ __ '/ __ '__ \/ _ \/ ___/
 / /_/ / /_/ / /_/ /__/ / / /  / _, _/  __/ / / / /_/ / / / / / /  __/ /
/_____/\__,_/\__/\___/_/ /_/  /_/ |_|\___/_/ /_/\__,_/_/ /_/ /_/\___/_/

` + rule)
	logging.Info("  Version %s (%s), built %s", Version, Commit, BuildTime)
	logging.Info("  Started %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM")
	logging.Info("  Go:          %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs:        %d (GOMAXPROCS %d)", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	if logging.IsDebugEnabled() {
		if host, err := os.Hostname(); err == nil {
			logging.Debug("  Host:        %s", host)
		}
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir: %s", wd)
		}
	}
}

// LogEffectiveConfig logs the effective configuration.
func LogEffectiveConfig(cfg *Config) {
	section("CONFIGURATION")
	rows := [][2]string{
		{"database_dir", cfg.DatabaseDir},
		{"cache_dir", cfg.CacheDir},
		{"media_dir", valueOr(cfg.MediaDir, "(not set)")},
		{"port", cfg.Port},
		{"log.level", logging.GetLevel().String()},
		{"log.file", valueOr(cfg.Log.File, "(stderr only)")},
		{"database.mmap_disabled", fmt.Sprint(cfg.Database.MmapDisabled)},
		{"cache.hash_capacity", fmt.Sprint(cfg.Cache.HashCapacity)},
		{"cache.metadata_capacity", fmt.Sprint(cfg.Cache.MetadataCapacity)},
		{"thumbnails.enabled", fmt.Sprint(cfg.Thumbnails.Enabled)},
		{"thumbnails.size", fmt.Sprint(cfg.Thumbnails.Size)},
		{"thumbnails.memory_capacity", fmt.Sprint(cfg.Thumbnails.MemoryCapacity)},
		{"thumbnails.workers", workersString(cfg.Thumbnails.Workers)},
		{"thumbnails.shutdown_timeout", cfg.Thumbnails.ShutdownTimeout.String()},
		{"hashing.algorithm", cfg.Hashing.Algorithm},
		{"hashing.workers", workersString(cfg.Hashing.Workers)},
		{"memory.limit_bytes", limitString(cfg.Memory.LimitBytes)},
		{"watch.enabled", fmt.Sprint(cfg.Watch.Enabled)},
		{"metrics.enabled", fmt.Sprint(cfg.Metrics.Enabled)},
	}
	for _, r := range rows {
		logging.Info("  %-28s %s", r[0]+":", r[1])
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func workersString(n int) string {
	if n <= 0 {
		return "auto"
	}
	return fmt.Sprint(n)
}

func limitString(n int64) string {
	if n <= 0 {
		return "(not set)"
	}
	return humanize.IBytes(uint64(n))
}

func logFeatures(f Features, metricsEnabled bool) {
	logging.Info("")
	logging.Info("  Features:")
	logging.Info("    Database    ENABLED (required)")
	logging.Info("    Thumbnails  %s", onOff(f.Thumbnails))
	logging.Info("    Video       %s", onOff(f.FFmpeg))
	logging.Info("    Watcher     %s", onOff(f.Watcher))
	logging.Info("    Metrics     %s", onOff(metricsEnabled))
}

// LogDatabaseInit reports how the store was opened.
func LogDatabaseInit(info database.OpenInfo, duration time.Duration) {
	section("DATABASE")
	logging.Info("  SQLite %s, schema v%d, mmap %s", info.SQLiteVersion, info.SchemaVersion, info.MmapStatus)
	if info.Recovered {
		logging.Warn("  Corrupt database was moved aside to %s", info.BackupPath)
	}
	logging.Info("  [OK] Opened in %v", duration)
}

// LogMemoryConfig reports how the soft memory limit was applied.
func LogMemoryConfig(result memory.LimitResult) {
	section("MEMORY")
	if !result.Configured {
		logging.Info("  No memory limit configured (source: %s)", result.Source)
		return
	}
	logging.Info("  GOMEMLIMIT %s (source: %s)", humanize.IBytes(uint64(result.GoMemLimit)), result.Source)
}

// LogThumbnailInit reports the pipeline shape, or that it is off.
func LogThumbnailInit(enabled bool, workers, size int, vips bool) {
	section("THUMBNAILS")
	if !enabled {
		logging.Info("  Disabled")
		return
	}
	decoder := "pure Go"
	if vips {
		decoder = "libvips"
	}
	logging.Info("  %d workers, %dpx, %s decoder", workers, size, decoder)
	logging.Info("  [OK] Pipeline started")
}

// LogWatcherInit reports the watched tree.
func LogWatcherInit(root string, dirs int) {
	section("WATCHER")
	logging.Info("  Watching %d directories under %s", dirs, root)
}

// RouteInfo is one method and path pair registered on the router.
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes lists the routes registered on router. Routes without a method
// matcher are reported with method "*".
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tmpl, err := route.GetPathTemplate()
		if err != nil {
			return err
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, RouteInfo{Method: m, Path: tmpl, Name: route.GetName()})
		}
		return nil
	})
	return routes, err
}

// LogHTTPRoutes lists registered routes grouped by prefix. The listing is
// only produced at debug level.
func LogHTTPRoutes(router *mux.Router) {
	section("HTTP")
	if !logging.IsDebugEnabled() {
		logging.Info("  Route listing available at LOG_LEVEL=debug")
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	groups := make(map[string][]RouteInfo)
	for _, r := range routes {
		g := getRouteGroup(r.Path)
		groups[g] = append(groups[g], r)
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	logging.Debug("  %d routes:", len(routes))
	for _, g := range names {
		logging.Debug("  [%s]", valueOr(g, "root"))
		for _, r := range groups[g] {
			logging.Debug("    %-6s %s", r.Method, r.Path)
		}
	}
}

// getRouteGroup is the first path segment, or the first two under /api.
func getRouteGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "api" && rest != "" {
		sub, _, _ := strings.Cut(rest, "/")
		return "api/" + sub
	}
	return first
}

// ServerConfig is what LogServerStarted prints.
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted prints the listening endpoints.
func LogServerStarted(config ServerConfig) {
	section("READY")
	logging.Info("  Started in %v", config.StartupDuration)
	logging.Info("  API:      http://0.0.0.0:%s/api", config.Port)
	logging.Info("  Health:   http://0.0.0.0:%s/healthz", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:  http://0.0.0.0:%s/metrics", config.Port)
	}
	logging.Info(rule)
}

// LogShutdownInitiated marks the start of graceful shutdown.
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN (%s)", signal))
}

// LogShutdownStep logs a step about to run.
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a finished step.
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs the end of graceful shutdown.
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs and exits.
func LogFatal(format string, args ...any) {
	logging.Fatal(format, args...)
}

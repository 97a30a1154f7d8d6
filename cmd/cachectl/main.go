package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"batch-renamer/internal/database"
	"batch-renamer/internal/logging"
	"batch-renamer/internal/startup"
)

var (
	cfgFile string
	logFile string
	verbose bool
	quiet   bool

	rootCmd = &cobra.Command{
		Use:   "cachectl",
		Short: "Inspect and populate the batch renamer cache",
		Long: `cachectl operates on the batch renamer's durable store and thumbnail
cache without the service running: hash and extract metadata for files,
pre-generate thumbnails, carry records across renames, find duplicates, and
check or compact the database.`,
		Version:           startup.Version,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $BATCHRENAMER_CONFIG, ./config.yaml or /etc/batch-renamer/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file (rotated)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet output (errors only)")
}

func setupLogging(_ *cobra.Command, _ []string) error {
	switch {
	case verbose:
		logging.SetLevel("debug")
	case quiet:
		logging.SetLevel("error")
	default:
		logging.SetLevel("warn")
	}
	if logFile != "" {
		logging.SetOutputFile(logFile, 10, 3, 7)
	}
	return nil
}

// loadConfig reads the same configuration the service uses.
func loadConfig() (*startup.Config, error) {
	cfg, err := startup.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if !verbose && !quiet && cfg.Log.Level != "" {
		logging.SetLevel(cfg.Log.Level)
	}
	return cfg, nil
}

// openDB opens the store named by cfg, creating its directory if needed.
func openDB(ctx context.Context, cfg *startup.Config) (*database.Database, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, info, err := database.New(ctx, cfg.DatabasePath, &database.Options{
		MmapDisabled:      cfg.Database.MmapDisabled,
		HashCacheSize:     cfg.Cache.HashCapacity,
		MetadataCacheSize: cfg.Cache.MetadataCapacity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if info.Recovered {
		logging.Warn("Corrupt database was moved aside to %s", info.BackupPath)
	}
	return db, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logging.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"batch-renamer/internal/cache"
	"batch-renamer/internal/database"
	"batch-renamer/internal/thumbnail"
)

var (
	statsJSON bool

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show store and cache statistics",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
)

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

type statsReport struct {
	Database  database.Summary      `json:"database"`
	Tiers     []cache.Stats         `json:"tiers"`
	Artifacts *thumbnail.CacheStats `json:"artifacts,omitempty"`
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := db.Summary(ctx)
	if err != nil {
		return err
	}
	report := statsReport{Database: summary, Tiers: db.CacheStats()}

	if _, err := os.Stat(cfg.ThumbnailDir); err == nil {
		artifacts, err := thumbnail.NewArtifactCache(cfg.ThumbnailDir, db, cfg.Thumbnails.MemoryCapacity)
		if err != nil {
			return err
		}
		s := artifacts.Stats()
		report.Artifacts = &s
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printStats(report)
	return nil
}

func printStats(r statsReport) {
	fmt.Printf("Database: %s (schema v%d)\n\n", r.Database.Path, r.Database.SchemaVersion)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS")
	for _, table := range sortedKeys(r.Database.Records) {
		fmt.Fprintf(w, "%s\t%s\n", table, humanize.Comma(r.Database.Records[table]))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "FILE\tSIZE")
	for _, file := range sortedKeys(r.Database.FileSizes) {
		fmt.Fprintf(w, "%s\t%s\n", file, humanize.IBytes(uint64(r.Database.FileSizes[file])))
	}
	_ = w.Flush()

	if r.Artifacts != nil {
		fmt.Printf("\nThumbnails: %s files, %s on disk\n",
			humanize.Comma(r.Artifacts.DiskFiles), humanize.IBytes(uint64(r.Artifacts.DiskBytes)))
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

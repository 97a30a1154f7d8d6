package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"batch-renamer/internal/logging"
	"batch-renamer/internal/mediatypes"
	"batch-renamer/internal/startup"
	"batch-renamer/internal/thumbnail"
)

var (
	thumbsSize      int
	thumbsWorkers   int
	thumbsRecursive bool

	thumbsCmd = &cobra.Command{
		Use:   "thumbs PATH...",
		Short: "Pre-generate thumbnails",
		Long: `Thumbs generates and caches a thumbnail for every image and video under the
given paths. Thumbnails that are already cached and current are not regenerated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runThumbs,
	}

	thumbsCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned thumbnail files",
		Args:  cobra.NoArgs,
		RunE:  runThumbsCleanup,
	}
)

func init() {
	thumbsCmd.Flags().IntVarP(&thumbsSize, "size", "s", 0, "thumbnail size in pixels (0 = from config)")
	thumbsCmd.Flags().IntVarP(&thumbsWorkers, "workers", "w", 0, "number of generation workers (0 = from config or CPU count)")
	thumbsCmd.Flags().BoolVarP(&thumbsRecursive, "recursive", "r", true, "descend into subdirectories")
	thumbsCmd.AddCommand(thumbsCleanupCmd)
	rootCmd.AddCommand(thumbsCmd)
}

func openArtifacts(cmd *cobra.Command, cfg *startup.Config) (*thumbnail.ArtifactCache, func(), error) {
	db, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	artifacts, err := thumbnail.NewArtifactCache(cfg.ThumbnailDir, db, cfg.Thumbnails.MemoryCapacity)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return artifacts, func() { db.Close() }, nil
}

func runThumbs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths, err := collectPaths(ctx, args, thumbsRecursive, mediatypes.Image, mediatypes.Video)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No images or videos found")
		return nil
	}

	artifacts, closeDB, err := openArtifacts(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if cfg.Thumbnails.UseVips {
		thumbnail.InitVips()
		defer thumbnail.ShutdownVips()
	}

	size := thumbsSize
	if size == 0 {
		size = cfg.Thumbnails.Size
	}
	workerCount := thumbsWorkers
	if workerCount == 0 {
		workerCount = cfg.Thumbnails.Workers
	}

	pipeline := thumbnail.NewPipeline(artifacts, thumbnail.PipelineConfig{
		Workers: workerCount,
		Size:    size,
	})
	pipeline.Start()
	defer func() {
		if !pipeline.Stop(cfg.Thumbnails.ShutdownTimeout) {
			logging.Warn("Thumbnail workers did not stop within %v", cfg.Thumbnails.ShutdownTimeout)
		}
	}()

	start := time.Now()
	var cached, generated, failed int
	var pending []*thumbnail.Handle
	for _, path := range paths {
		if _, ok := pipeline.Lookup(ctx, path, size); ok {
			cached++
			continue
		}
		pending = append(pending, pipeline.Request(path, size))
	}

	bar := newProgressBar(len(pending), "Generating")
	for _, h := range pending {
		if _, err := h.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			failed++
			logging.Debug("Thumbnail failed for %s: %v", h.Path, err)
			fmt.Printf("  FAILED %s: %v\n", h.Path, err)
		} else {
			generated++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	stats := artifacts.Stats()
	fmt.Printf("Thumbnails: %d generated, %d cached, %d failed in %s (cache: %d files, %s)\n",
		generated, cached, failed, time.Since(start).Round(time.Millisecond),
		stats.DiskFiles, humanize.IBytes(uint64(stats.DiskBytes)))

	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d thumbnails failed", failed)
	}
	return nil
}

func runThumbsCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	artifacts, closeDB, err := openArtifacts(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	removed, freed, err := artifacts.Cleanup(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d orphaned thumbnails (%s freed)\n", removed, humanize.IBytes(uint64(freed)))
	return nil
}

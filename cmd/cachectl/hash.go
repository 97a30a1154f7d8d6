package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"batch-renamer/internal/hashing"
	"batch-renamer/internal/tasks"
)

var (
	hashAlgorithm string
	hashForce     bool
	hashWorkers   int
	hashRecursive bool

	hashCmd = &cobra.Command{
		Use:   "hash PATH...",
		Short: "Hash files and store the results",
		Long: `Hash computes a content hash for each file (directories are expanded) and
stores it against the file's identity. Files whose stored hash is still
current for their size are skipped unless --force is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runHash,
	}
)

func init() {
	hashCmd.Flags().StringVarP(&hashAlgorithm, "algorithm", "a", "", "hash algorithm: CRC32, XXH64 or SHA256 (default from config)")
	hashCmd.Flags().BoolVar(&hashForce, "force", false, "rehash files even when the stored hash is current")
	hashCmd.Flags().IntVarP(&hashWorkers, "workers", "w", 0, "number of hash workers (0 = from config or CPU count)")
	hashCmd.Flags().BoolVarP(&hashRecursive, "recursive", "r", true, "descend into subdirectories")
	rootCmd.AddCommand(hashCmd)
}

func runHash(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	algorithm := hashAlgorithm
	if algorithm == "" {
		algorithm = cfg.Hashing.Algorithm
	}
	workerCount := hashWorkers
	if workerCount == 0 {
		workerCount = cfg.Hashing.Workers
	}

	paths, err := collectPaths(ctx, args, hashRecursive)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No files to hash")
		return nil
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	producer, err := hashing.NewProducer(db, algorithm, workerCount)
	if err != nil {
		return err
	}
	producer.Force = hashForce

	var summary hashing.Summary
	failures := runWithEvents(len(paths), "Hashing", "hash", func(events chan<- tasks.Event) {
		summary = producer.Run(ctx, paths, events)
	})

	fmt.Printf("%s: %d hashed, %d cached, %d failed (%s read in %s)\n",
		producer.Algorithm(), summary.Hashed, summary.Cached, summary.Failed,
		humanize.IBytes(uint64(summary.Bytes)), summary.Duration.Round(time.Millisecond))
	printFailures(failures)

	if err := ctx.Err(); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d files failed to hash", summary.Failed)
	}
	return nil
}

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"batch-renamer/internal/database"
	"batch-renamer/internal/extract"
	"batch-renamer/internal/tasks"
)

var (
	metaExtended  bool
	metaShow      bool
	metaWorkers   int
	metaRecursive bool

	metaCmd = &cobra.Command{
		Use:   "meta PATH...",
		Short: "Extract and store file metadata",
		Long: `Meta extracts metadata for each file (directories are expanded) and stores
it against the file's identity. The fast set covers dimensions and basic tags;
--extended adds the full EXIF, stream and tag details.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMeta,
	}
)

func init() {
	metaCmd.Flags().BoolVarP(&metaExtended, "extended", "e", false, "extract the extended metadata set")
	metaCmd.Flags().BoolVar(&metaShow, "show", false, "print the stored metadata of each file")
	metaCmd.Flags().IntVarP(&metaWorkers, "workers", "w", 0, "number of extraction workers (0 = sized for I/O)")
	metaCmd.Flags().BoolVarP(&metaRecursive, "recursive", "r", true, "descend into subdirectories")
	rootCmd.AddCommand(metaCmd)
}

func runMeta(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths, err := collectPaths(ctx, args, metaRecursive)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("No files to read")
		return nil
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	kind := database.MetadataFast
	if metaExtended {
		kind = database.MetadataExtended
	}

	loader := extract.NewLoader(db, nil, metaWorkers)
	var summary extract.Summary
	failures := runWithEvents(len(paths), "Extracting", "metadata", func(events chan<- tasks.Event) {
		summary = loader.Run(ctx, paths, kind, events)
	})

	fmt.Printf("%s metadata: %d extracted, %d cached, %d failed in %s\n",
		kind, summary.Extracted, summary.Cached, summary.Failed, summary.Duration.Round(time.Millisecond))
	printFailures(failures)

	if metaShow {
		for _, path := range paths {
			data, _, err := loader.Load(ctx, path, kind)
			if err != nil {
				continue
			}
			printMetadata(path, extract.Structured(data))
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d files failed metadata extraction", summary.Failed)
	}
	return nil
}

func printMetadata(path string, fields map[string]string) {
	fmt.Printf("\n%s\n", path)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %s\n", k, fields[k])
	}
}

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"batch-renamer/internal/hashing"
)

var (
	dupesAlgorithm string

	dupesCmd = &cobra.Command{
		Use:   "dupes",
		Short: "List files with identical stored hashes",
		Long: `Dupes groups files whose stored hash for the chosen algorithm is identical.
Only files hashed earlier with "cachectl hash" (or by the service) are
considered.`,
		Args: cobra.NoArgs,
		RunE: runDupes,
	}
)

func init() {
	dupesCmd.Flags().StringVarP(&dupesAlgorithm, "algorithm", "a", "", "hash algorithm to compare (default from config)")
	rootCmd.AddCommand(dupesCmd)
}

func runDupes(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := dupesAlgorithm
	if name == "" {
		name = cfg.Hashing.Algorithm
	}
	algorithm, err := hashing.ParseAlgorithm(name)
	if err != nil {
		return err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	groups, err := db.FindDuplicates(ctx, algorithm)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Printf("No duplicates found (%s)\n", algorithm)
		return nil
	}

	var wasted int64
	for _, g := range groups {
		fmt.Printf("%s  %s  %d files\n", g.Hash, humanize.IBytes(uint64(g.Size)), len(g.Paths))
		for _, p := range g.Paths {
			fmt.Printf("  %s\n", p)
		}
		wasted += g.Size * int64(len(g.Paths)-1)
	}
	fmt.Printf("\n%d groups, %s reclaimable\n", len(groups), humanize.IBytes(uint64(wasted)))
	return nil
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"batch-renamer/internal/database"
)

var (
	renameMove    bool
	renameMapFile string
	renameDryRun  bool

	renameCmd = &cobra.Command{
		Use:   "rename [OLD NEW]",
		Short: "Carry cached records across a rename",
		Long: `Rename moves the stored hash, metadata and state of OLD to NEW so they
survive a rename performed outside the service. With --move the file itself is
renamed first. With --map, pairs are read from a file of tab-separated
"old<TAB>new" lines; blank lines and lines starting with # are ignored.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if renameMapFile != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: runRename,
	}
)

func init() {
	renameCmd.Flags().BoolVar(&renameMove, "move", false, "rename the file on disk before updating the cache")
	renameCmd.Flags().StringVar(&renameMapFile, "map", "", "read old/new pairs from this file")
	renameCmd.Flags().BoolVarP(&renameDryRun, "dry-run", "n", false, "show what would be renamed without changing anything")
	rootCmd.AddCommand(renameCmd)
}

type renamePair struct {
	From string
	To   string
}

// parseRenameMap reads tab-separated old/new pairs.
func parseRenameMap(path string) ([]renamePair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pairs []renamePair
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		from, to, ok := strings.Cut(text, "\t")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("%s:%d: expected \"old<TAB>new\"", path, line)
		}
		pairs = append(pairs, renamePair{From: from, To: to})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

func runRename(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var pairs []renamePair
	if renameMapFile != "" {
		var err error
		if pairs, err = parseRenameMap(renameMapFile); err != nil {
			return err
		}
	} else {
		pairs = []renamePair{{From: args[0], To: args[1]}}
	}
	for i := range pairs {
		from, err := filepath.Abs(pairs[i].From)
		if err != nil {
			return err
		}
		to, err := filepath.Abs(pairs[i].To)
		if err != nil {
			return err
		}
		pairs[i] = renamePair{From: from, To: to}
	}

	if renameDryRun {
		for _, p := range pairs {
			fmt.Printf("%s -> %s\n", p.From, p.To)
		}
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var renamed, unknown, failed int
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if renameMove {
			if _, err := os.Lstat(p.To); err == nil {
				fmt.Fprintf(os.Stderr, "  SKIPPED %s: %s already exists\n", p.From, p.To)
				failed++
				continue
			} else if !errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "  FAILED %s: %v\n", p.From, err)
				failed++
				continue
			}
			if err := os.Rename(p.From, p.To); err != nil {
				fmt.Fprintf(os.Stderr, "  FAILED %s: %v\n", p.From, err)
				failed++
				continue
			}
		}

		ok, err := db.Rename(ctx, p.From, p.To)
		switch {
		case errors.Is(err, database.ErrInvalidPath):
			fmt.Fprintf(os.Stderr, "  FAILED %s: %v\n", p.From, err)
			failed++
		case err != nil:
			return fmt.Errorf("failed to rename %s: %w", p.From, err)
		case ok:
			renamed++
		default:
			unknown++
		}
	}

	fmt.Printf("Renamed %d, not cached %d, failed %d\n", renamed, unknown, failed)
	if failed > 0 {
		return fmt.Errorf("%d renames failed", failed)
	}
	return nil
}

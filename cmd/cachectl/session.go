package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Inspect persisted session state",
	}

	sessionListCmd = &cobra.Command{
		Use:   "list",
		Short: "List every stored key",
		Args:  cobra.NoArgs,
		RunE:  runSessionList,
	}

	sessionDeleteCmd = &cobra.Command{
		Use:   "delete KEY...",
		Short: "Delete stored keys",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSessionDelete,
	}
)

func init() {
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionList(cmd *cobra.Command, _ []string) error {
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

	state := db.LoadState(ctx)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTYPE\tUPDATED\tVALUE")
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		v := state[key]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", key, v.Type, humanize.Time(v.UpdatedAt), truncate(v.Value, 60))
	}
	return w.Flush()
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
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

	for _, key := range args {
		if err := db.DeleteState(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

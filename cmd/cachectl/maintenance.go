package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	integrityCmd = &cobra.Command{
		Use:   "integrity",
		Short: "Run an integrity check on the database",
		Args:  cobra.NoArgs,
		RunE:  runIntegrity,
	}

	vacuumCmd = &cobra.Command{
		Use:   "vacuum",
		Short: "Compact the database",
		Args:  cobra.NoArgs,
		RunE:  runVacuum,
	}
)

func init() {
	rootCmd.AddCommand(integrityCmd)
	rootCmd.AddCommand(vacuumCmd)
}

func runIntegrity(cmd *cobra.Command, _ []string) error {
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

	if err := db.CheckIntegrity(ctx); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runVacuum(cmd *cobra.Command, _ []string) error {
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

	before, err := db.Summary(ctx)
	if err != nil {
		return err
	}
	if err := db.Vacuum(ctx); err != nil {
		return err
	}
	after, err := db.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Vacuum complete: %s -> %s\n",
		humanize.IBytes(uint64(before.FileSizes["main"])), humanize.IBytes(uint64(after.FileSizes["main"])))
	return nil
}

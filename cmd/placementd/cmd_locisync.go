/*
Copyright (C) 2026 Pawmark

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pawmarkhq/placement/internal/db"
	"github.com/pawmarkhq/placement/internal/genetics"
)

var (
	lociSyncDryRun    bool
	lociSyncRemapPath string
)

var lociSyncCmd = &cobra.Command{
	Use:   "loci-sync",
	Short: "Run a one-off genetics normalization pass",
	Long: `Reads every animal's raw genetics blob, normalizes it into queryable
locus rows, and rewrites the animal_loci table.

Examples:
  placementd loci-sync --dry-run
  placementd loci-sync --remap ./remap.yaml`,
	RunE: runLociSync,
}

func init() {
	rootCmd.AddCommand(lociSyncCmd)

	lociSyncCmd.Flags().BoolVar(&lociSyncDryRun, "dry-run", false, "Report what would be written without touching the database")
	lociSyncCmd.Flags().StringVar(&lociSyncRemapPath, "remap", "", "Category remap table (overrides PAWMARK_GENETICS_REMAP_PATH)")
}

func runLociSync(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	remapPath := cfg.GeneticsRemapPath
	if lociSyncRemapPath != "" {
		remapPath = lociSyncRemapPath
	}
	remapper, err := genetics.LoadRemapper(remapPath)
	if err != nil {
		return fmt.Errorf("load remap table: %w", err)
	}

	svc := genetics.NewService(database, nil, remapper, logger)
	stats, err := svc.SyncAll(context.Background(), lociSyncDryRun)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	fmt.Printf("animals scanned:  %d\n", stats.AnimalsScanned)
	fmt.Printf("animals synced:   %d\n", stats.AnimalsSynced)
	fmt.Printf("loci written:     %d\n", stats.LociWritten)
	fmt.Printf("blobs skipped:    %d\n", stats.BlobsSkipped)
	if lociSyncDryRun {
		fmt.Println("dry run: no rows were written")
	}
	return nil
}

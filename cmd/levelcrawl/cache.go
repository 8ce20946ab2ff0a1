package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/levelcrawl/internal/config"
	"github.com/nao1215/levelcrawl/internal/database"
)

// NewCacheCmd creates the cache command.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune the page cache",
		Long: `Cache prints the number of cached pages.

Pages are cached without expiry; --prune removes pages fetched longer ago
than the given duration so the next crawl downloads them again.

Examples:
  # Show the cache size
  levelcrawl cache

  # Drop pages older than a week
  levelcrawl cache --prune 168h`,
		Args: cobra.NoArgs,
		RunE: runCacheCmd,
	}

	cmd.Flags().Duration("prune", 0, "Remove pages fetched longer ago than this duration")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the page cache database")

	return cmd
}

// runCacheCmd executes the cache command.
func runCacheCmd(cmd *cobra.Command, _ []string) error {
	prune, err := cmd.Flags().GetDuration("prune")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if prune < 0 {
		return fmt.Errorf("invalid --prune %s: must be positive", prune)
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if prune > 0 {
		n, err := db.DeletePagesBefore(ctx, time.Now().Add(-prune))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d cached pages\n", n)
	}

	count, err := db.CountPages(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d pages cached in %s\n", count, db.Path())
	return nil
}

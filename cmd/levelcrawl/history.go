package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/levelcrawl/internal/config"
	"github.com/nao1215/levelcrawl/internal/database"
	"github.com/nao1215/levelcrawl/internal/model"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [URL]",
		Short: "Show saved crawl runs",
		Long: `History lists the crawl runs saved in the local database, newest first.

With URL only runs seeded at that address are listed. --id prints the full
report of one run instead.

Examples:
  # List the last 20 runs
  levelcrawl history

  # List the runs of one seed
  levelcrawl history https://example.com/

  # Show run 7 as Markdown
  levelcrawl history --id 7 -m

  # Delete run 7
  levelcrawl history --delete 7`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of runs to list (0 lists all)")
	cmd.Flags().Int64P("id", "i", 0, "Show the full report of the run with this ID")
	cmd.Flags().Int64("delete", 0, "Delete the run with this ID")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the crawl history database")
	cmd.Flags().BoolP("json", "j", false, "Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Write output to specified file path")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	cfg := config.NewConfig()

	var err error
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	id, err := flags.GetInt64("id")
	if err != nil {
		return err
	}
	deleteID, err := flags.GetInt64("delete")
	if err != nil {
		return err
	}

	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	if cfg.DBDir == "" {
		return errors.New("no database directory: history needs --db-dir")
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(cfg.DBDir, opts)
	if err != nil {
		return fmt.Errorf("failed to open database (has anything been crawled yet?): %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case deleteID != 0:
		if err := db.DeleteRun(ctx, deleteID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted run #%d\n", deleteID)
		return nil

	case id != 0:
		run, err := db.GetRun(ctx, id)
		if err != nil {
			return err
		}
		return writeRuns(cfg, out, []*model.CrawlRun{run}, false)

	default:
		var seed string
		if len(args) == 1 {
			seed = args[0]
		}
		runs, err := db.ListRuns(ctx, seed, limit)
		if err != nil {
			return err
		}
		return writeRuns(cfg, out, runs, true)
	}
}

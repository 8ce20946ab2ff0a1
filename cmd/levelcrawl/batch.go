package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/levelcrawl/internal/config"
	"github.com/nao1215/levelcrawl/internal/model"
	"github.com/nao1215/levelcrawl/internal/pipeline"
)

// NewBatchCmd creates the batch command.
func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch --list FILE",
		Short: "Crawl several seeds concurrently",
		Long: `Batch crawls every seed listed in FILE, one per line.

Blank lines and lines starting with '#' are ignored. Up to --batch seeds are
crawled at once. All traversals share one crawler, so the worker pools and
the per-host limit apply across the whole batch. A failed seed does not stop
the others.

Examples:
  # Crawl two levels of every seed in seeds.txt, 4 at a time
  levelcrawl batch -l seeds.txt -d 2

  # Write a JSON history of the batch
  levelcrawl batch -l seeds.txt -j -o batch.json`,
		Args: cobra.NoArgs,
		RunE: runBatchCmd,
	}

	cmd.Flags().StringP("list", "l", "", "File with one seed address per line")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Number of seeds crawled concurrently")
	cmd.Flags().IntP("depth", "d", config.DefaultDepth, "Number of levels to visit per seed")
	cmd.Flags().Int("downloads", config.DefaultDownloaders, "Size of the fetch pool")
	cmd.Flags().Int("extractors", config.DefaultExtractors, "Size of the extraction pool")
	cmd.Flags().Int("per-host", config.DefaultPerHost, "Maximum concurrent requests per host")
	addCrawlFlags(cmd)

	return cmd
}

// runBatchCmd executes the batch command.
func runBatchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyBatchFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runBatch(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// applyBatchFlags reads the seed list and the crawl budgets into cfg.
// Budget flags override the config file only when set explicitly.
func applyBatchFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	listPath, err := flags.GetString("list")
	if err != nil {
		return err
	}
	if listPath == "" {
		return config.ErrNoTarget
	}
	if cfg.Seeds, err = readSeedList(listPath); err != nil {
		return err
	}

	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return err
	}

	budgets := []struct {
		name string
		dst  *int
	}{
		{"depth", &cfg.Depth},
		{"downloads", &cfg.Downloaders},
		{"extractors", &cfg.Extractors},
		{"per-host", &cfg.PerHost},
	}
	for _, b := range budgets {
		if !flags.Changed(b.name) {
			continue
		}
		if *b.dst, err = flags.GetInt(b.name); err != nil {
			return err
		}
	}
	return nil
}

// readSeedList reads one seed per line from path.
func readSeedList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path is given by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open seed list: %w", err)
	}
	defer f.Close()

	return parseSeedList(f)
}

// parseSeedList returns the non-blank, non-comment lines of r.
func parseSeedList(r io.Reader) ([]string, error) {
	var seeds []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed list: %w", err)
	}
	return seeds, nil
}

// runBatch crawls every seed of cfg and writes the runs as a history list.
func runBatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) (err error) {
	env, err := newEnvironment(ctx, cfg, logger, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(); cerr != nil {
			logger.Debug("crawler closed", "error", cerr)
		}
	}()

	fmt.Fprintf(stderr, "Starting batch crawl of %d seeds (concurrency: %d)...\n\n",
		len(cfg.Seeds), cfg.BatchSize)

	bp := pipeline.NewBatchProcessor(env.newJob, env.newRun,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	runs, batchErr := bp.ProcessBatch(ctx, cfg.Seeds)
	for _, run := range runs {
		printRunSummary(stderr, run)
	}
	if len(runs) < len(cfg.Seeds) {
		fmt.Fprintf(stderr, "%d seeds were not crawled\n", len(cfg.Seeds)-len(runs))
	}

	if err := writeRuns(cfg, stdout, runs, true); err != nil {
		return errors.Join(batchErr, fmt.Errorf("failed to write report: %w", err))
	}
	if batchErr != nil {
		return batchErr
	}
	return failedRuns(runs)
}

// failedRuns returns an error naming how many runs stopped on an error.
func failedRuns(runs []*model.CrawlRun) error {
	failed := 0
	for _, run := range runs {
		if run.Error != "" {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d crawls failed", failed, len(runs))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/levelcrawl/internal/config"
	"github.com/nao1215/levelcrawl/internal/model"
	"github.com/nao1215/levelcrawl/internal/report"
)

// maxCrawlArgs is the number of positional arguments of the crawl command:
// URL, depth, downloaders, extractors and the per-host limit.
const maxCrawlArgs = 5

// errUsage is returned for a malformed crawl command line.
var errUsage = errors.New("usage: levelcrawl crawl URL [depth [downloads [extractors [perHost]]]]")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl URL [depth [downloads [extractors [perHost]]]]",
		Short: "Crawl a site level by level",
		Long: `Crawl visits URL and every address reachable from it up to depth levels.

Level 1 is the seed itself. Each level is fetched by "downloads" workers and
scanned for links by "extractors" workers, with at most "perHost" concurrent
requests to any one host. Every optional argument defaults to 1.

Examples:
  # Fetch only the start page
  levelcrawl crawl https://example.com/

  # Three levels, 8 downloaders, 2 extractors, 2 requests per host
  levelcrawl crawl https://example.com/ 3 8 2 2

  # Skip logout links and write a Markdown report
  levelcrawl crawl -x logout -m -o report.md https://example.com/ 2

  # Crawl an onion service through a local Tor proxy
  levelcrawl crawl --proxy 127.0.0.1:9050 http://<56 chars>.onion/ 2`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	addCrawlFlags(cmd)

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyCrawlArgs(cfg, args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// applyCrawlArgs stores the positional arguments in cfg. Arguments that are
// left out keep the values of the config file or the defaults.
func applyCrawlArgs(cfg *config.Config, args []string) error {
	if len(args) == 0 || len(args) > maxCrawlArgs {
		return errUsage
	}
	if args[0] == "" {
		return fmt.Errorf("%w: missing URL", errUsage)
	}
	cfg.Seeds = []string{args[0]}

	targets := []struct {
		name string
		dst  *int
	}{
		{"depth", &cfg.Depth},
		{"downloads", &cfg.Downloaders},
		{"extractors", &cfg.Extractors},
		{"perHost", &cfg.PerHost},
	}
	for i, arg := range args[1:] {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", errUsage, targets[i].name, arg)
		}
		*targets[i].dst = n
	}
	return nil
}

// runCrawl crawls the single seed of cfg, prints the report and returns the
// error of the crawl job. Interrupted crawls still print their partial
// result.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) (err error) {
	env, err := newEnvironment(ctx, cfg, logger, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(); cerr != nil && err == nil {
			logger.Debug("crawler closed", "error", cerr)
		}
	}()

	seed := cfg.Seeds[0]
	run := env.newRun(seed)

	logger.Info("starting crawl",
		"seed", seed,
		"depth", cfg.Depth,
		"downloaders", cfg.Downloaders,
		"extractors", cfg.Extractors,
		"perHost", cfg.PerHost,
	)

	jobErr := env.newJob().Execute(ctx, run)
	printRunSummary(stderr, run)

	if err := writeRuns(cfg, stdout, []*model.CrawlRun{run}, false); err != nil {
		return errors.Join(jobErr, fmt.Errorf("failed to write report: %w", err))
	}
	return jobErr
}

// printRunSummary prints a one-line outcome of run.
func printRunSummary(w io.Writer, run *model.CrawlRun) {
	s := report.Summarize(run)
	fmt.Fprintf(w, "Crawl of %s %s in %s: %d visited, %d failed",
		run.Seed, s.Status, run.Duration.Round(time.Millisecond), s.Visited, s.Failed)
	if run.ID != 0 {
		fmt.Fprintf(w, " (saved as #%d)", run.ID)
	}
	fmt.Fprintln(w)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/levelcrawl/internal/config"
	"github.com/nao1215/levelcrawl/internal/crawler"
	"github.com/nao1215/levelcrawl/internal/database"
	"github.com/nao1215/levelcrawl/internal/fetch"
	logpkg "github.com/nao1215/levelcrawl/internal/log"
	"github.com/nao1215/levelcrawl/internal/model"
	"github.com/nao1215/levelcrawl/internal/pipeline"
	"github.com/nao1215/levelcrawl/internal/report"
	"github.com/nao1215/levelcrawl/internal/tor"
)

// addCrawlFlags registers the flags shared by crawl and batch.
func addCrawlFlags(cmd *cobra.Command) {
	// Traversal
	cmd.Flags().StringArrayP("exclude", "x", nil,
		"Skip addresses containing this substring (repeatable)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of each HTTP request")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum number of body bytes read per page")

	// Proxy
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route requests through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Storage
	cmd.Flags().Bool("no-cache", false,
		"Always download pages instead of using the page cache")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the page cache and crawl history database")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .levelcrawl in current or home directory)")

	// Report
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// buildConfig creates a Config from the config file and the shared flags.
// Seeds and the crawl budgets are filled in by the calling command.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// An explicit path must exist; the default locations are optional.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(file)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	excludes, err := flags.GetStringArray("exclude")
	if err != nil {
		return nil, err
	}
	cfg.Excludes = append(cfg.Excludes, excludes...)

	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseEmbeddedTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.NoCache, err = flags.GetBool("no-cache"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the secure structured logger on stderr.
func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	return logpkg.NewSecureLogger(w, verbose)
}

// environment holds what a crawl needs: the crawler, its fetch stack and
// the database. Close releases all of it.
type environment struct {
	cfg     *config.Config
	logger  *slog.Logger
	crawler *crawler.Crawler
	db      *database.CrawlDB
	daemon  *tor.Daemon
}

// newEnvironment opens the database, sets up the proxy and builds the
// crawler. On error everything opened so far is released.
func newEnvironment(ctx context.Context, cfg *config.Config, logger *slog.Logger, status io.Writer) (env *environment, err error) {
	env = &environment{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = env.Close() //nolint:errcheck // best effort cleanup
			env = nil
		}
	}()

	if cfg.DBDir != "" {
		env.db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return env, fmt.Errorf("failed to open database: %w", err)
		}
		logger.Debug("database opened", "path", env.db.Path())
	}

	proxy, err := env.setupProxy(ctx, status)
	if err != nil {
		return env, err
	}

	fetchOpts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithSites(cfg.Sites),
		fetch.WithLogger(logger),
	}
	if proxy != nil {
		fetchOpts = append(fetchOpts, fetch.WithProxy(proxy))
	}
	httpFetcher := fetch.NewHTTPFetcher(fetchOpts...)

	var fetcher crawler.Fetcher = httpFetcher
	if env.db != nil && !cfg.NoCache {
		fetcher = fetch.NewCachingFetcher(httpFetcher, env.db, logger)
	}

	env.crawler, err = crawler.New(fetcher,
		crawler.WithDownloaders(cfg.Downloaders),
		crawler.WithExtractors(cfg.Extractors),
		crawler.WithPerHost(cfg.PerHost),
		crawler.WithOriginFunc(tor.OriginOf),
		crawler.WithLogger(logger),
	)
	if err != nil {
		return env, fmt.Errorf("failed to create crawler: %w", err)
	}

	return env, nil
}

// setupProxy returns the SOCKS5 proxy to route through, or nil for direct
// connections.
func (e *environment) setupProxy(ctx context.Context, status io.Writer) (*tor.Proxy, error) {
	switch {
	case e.cfg.ProxyAddress != "":
		proxy, err := tor.NewProxy(e.cfg.ProxyAddress)
		if err != nil {
			return nil, err
		}
		if st := proxy.Check(ctx); st != tor.ProxyStatusOK {
			return nil, fmt.Errorf("proxy check failed for %s: %w", e.cfg.ProxyAddress, st.Err())
		}
		e.logger.Info("proxy connection verified", "address", e.cfg.ProxyAddress)
		return proxy, nil

	case e.cfg.UseEmbeddedTor:
		fmt.Fprintln(status, "Starting embedded Tor daemon...")
		fmt.Fprintf(status, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		e.daemon = tor.NewDaemon(
			tor.WithStartupTimeout(e.cfg.TorStartupTimeout),
			tor.WithDaemonLogger(e.logger),
		)
		if err := e.daemon.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		proxy, err := e.daemon.Proxy()
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(status, "Embedded Tor daemon started, SOCKS proxy: %s\n\n", proxy.Address())
		return proxy, nil

	default:
		return nil, nil
	}
}

// store returns the run store, or nil when there is no database.
func (e *environment) store() pipeline.RunStore {
	if e.db == nil {
		return nil
	}
	return e.db
}

// newJob returns the pipeline of one crawl job.
func (e *environment) newJob() *pipeline.Pipeline {
	return pipeline.NewJob(pipeline.JobConfig{
		Traverser: e.crawler,
		Store:     e.store(),
		Logger:    e.logger,
	})
}

// newRun creates the run record of a traversal seeded at seed.
func (e *environment) newRun(seed string) *model.CrawlRun {
	return &model.CrawlRun{
		Seed:        seed,
		Depth:       e.cfg.Depth,
		Downloaders: e.cfg.Downloaders,
		Extractors:  e.cfg.Extractors,
		PerHost:     e.cfg.PerHost,
		Excludes:    e.cfg.ExcludesFor(seed),
	}
}

// Close shuts the crawler down, stops the Tor daemon and closes the
// database. It returns the crawler's interruption error, if any.
func (e *environment) Close() error {
	var errs []error
	if e.crawler != nil {
		errs = append(errs, e.crawler.Close())
	}
	if e.daemon != nil {
		e.logger.Info("stopping embedded Tor daemon")
		if err := e.daemon.Stop(); err != nil {
			e.logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// reportFormat returns the report format selected by the flags.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatSimple
	}
}

// openReportOutput returns the report destination: cfg.ReportFile, created
// with owner-only permissions, or stdout.
func openReportOutput(cfg *config.Config, stdout io.Writer) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports list every address crawled, which may be private.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// writeRuns renders runs in the selected format. A single run is written
// as a report, several runs as a history list.
func writeRuns(cfg *config.Config, stdout io.Writer, runs []*model.CrawlRun, asHistory bool) error {
	output, closeOutput, err := openReportOutput(cfg, stdout)
	if err != nil {
		return err
	}

	w, err := report.NewWriter(reportFormat(cfg), output, getVersion())
	if err != nil {
		_ = closeOutput()
		return err
	}

	if asHistory {
		_, err = w.WriteHistory(runs)
	} else {
		for _, run := range runs {
			if _, err = w.Write(run); err != nil {
				break
			}
		}
	}
	if cerr := closeOutput(); err == nil {
		err = cerr
	}
	return err
}

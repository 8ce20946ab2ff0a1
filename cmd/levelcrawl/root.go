package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for levelcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levelcrawl",
		Short: "Level-by-level concurrent web crawler",
		Long: `levelcrawl visits a web site breadth first, one depth level at a time.

Each level is fetched by a pool of downloaders and scanned for links by a
pool of extractors. A per-host limit keeps the crawler polite. Fetched pages
are cached and every crawl is recorded in a local history database.

Onion services can be crawled through an external SOCKS5 proxy (--proxy)
or an embedded Tor daemon (--tor).`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewBatchCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCacheCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

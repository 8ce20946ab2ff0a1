package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "levelcrawl"

	// DefaultDepth, DefaultDownloaders, DefaultExtractors and DefaultPerHost
	// apply to every positional argument left out on the command line.
	DefaultDepth       = 1
	DefaultDownloaders = 1
	DefaultExtractors  = 1
	DefaultPerHost     = 1

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of seeds crawled at once by the batch
	// command.
	DefaultBatchSize = 4

	// DefaultUserAgent identifies levelcrawl in HTTP requests.
	DefaultUserAgent = "levelcrawl/1.0 (+https://github.com/nao1215/levelcrawl)"

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DBFileName is the name of the SQLite database under the data directory.
	DBFileName = "levelcrawl.db"
)

// Config holds every option of a levelcrawl invocation.
// It is populated from the config file and the command line and passed
// down explicitly; there is no global configuration state.
type Config struct {
	// Seeds are the starting addresses. The crawl command has one, the
	// batch command one per line of the list file.
	Seeds []string

	// Depth is the number of levels to visit. Depth 1 fetches only the seed.
	Depth int

	// Downloaders is the size of the fetch pool.
	Downloaders int

	// Extractors is the size of the extraction pool.
	Extractors int

	// PerHost is the maximum number of concurrent fetches per host.
	PerHost int

	// Excludes are substring filters; matching addresses are skipped.
	Excludes []string

	// Timeout is the timeout of one HTTP request.
	Timeout time.Duration

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// ProxyAddress is a SOCKS5 proxy in "host:port" form. Empty means a
	// direct connection.
	ProxyAddress string

	// UseEmbeddedTor starts an embedded Tor daemon and routes every fetch
	// through it.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds the bootstrap of the embedded Tor daemon.
	TorStartupTimeout time.Duration

	// NoCache disables the page cache.
	NoCache bool

	// DBDir is the directory of the SQLite database holding the page cache
	// and the crawl history. Empty disables both.
	DBDir string

	// BatchSize is the number of seeds crawled concurrently by the batch
	// command.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit path of the config file. When empty
	// .levelcrawl is searched in the current and the home directory.
	ConfigFilePath string

	// Sites holds the contents of the config file, if one was loaded.
	Sites *File

	// JSONReport selects JSON output.
	JSONReport bool

	// MarkdownReport selects Markdown output.
	MarkdownReport bool

	// ReportFile is the output path. Empty means stdout.
	ReportFile string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Depth:             DefaultDepth,
		Downloaders:       DefaultDownloaders,
		Extractors:        DefaultExtractors,
		PerHost:           DefaultPerHost,
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		BatchSize:         DefaultBatchSize,
		DBDir:             XDGDataDir(),
	}
}

// ApplyFile copies the crawl profile of the config file's defaults section
// into c. Only values set in the file are applied; command-line arguments
// are applied afterwards and take precedence.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.Sites = f

	d := f.Defaults
	if d.Depth > 0 {
		c.Depth = d.Depth
	}
	if d.Downloaders > 0 {
		c.Downloaders = d.Downloaders
	}
	if d.Extractors > 0 {
		c.Extractors = d.Extractors
	}
	if d.PerHost > 0 {
		c.PerHost = d.PerHost
	}
	c.Excludes = append(c.Excludes, d.Excludes...)
}

// ExcludesFor returns the exclusion filters of a traversal starting at seed:
// the global filters plus those of the seed's site section.
func (c *Config) ExcludesFor(seed string) []string {
	out := append([]string(nil), c.Excludes...)
	if c.Sites == nil {
		return out
	}
	if site, ok := c.Sites.Sites[hostOf(seed)]; ok {
		out = append(out, site.Excludes...)
	}
	return out
}

// DBPath returns the path of the SQLite database, or "" when persistence
// is disabled.
func (c *Config) DBPath() string {
	if c.DBDir == "" {
		return ""
	}
	return filepath.Join(c.DBDir, DBFileName)
}

// XDGDataDir returns the XDG data directory for levelcrawl.
// On Linux: ~/.local/share/levelcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for levelcrawl.
// On Linux: ~/.config/levelcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoTarget
	}
	if c.Depth < 0 {
		return ErrInvalidDepth
	}
	if c.Downloaders <= 0 {
		return ErrInvalidDownloaders
	}
	if c.Extractors <= 0 {
		return ErrInvalidExtractors
	}
	if c.PerHost <= 0 {
		return ErrInvalidPerHost
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.UseEmbeddedTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}

package fetch

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/nao1215/levelcrawl/internal/config"
	"github.com/nao1215/levelcrawl/internal/crawler"
	"github.com/nao1215/levelcrawl/internal/model"
	"github.com/nao1215/levelcrawl/internal/tor"
)

const (
	acceptHeader         = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
	acceptEncodingHeader = "br, gzip"

	// maxRedirects bounds redirect chains.
	maxRedirects = 10
)

// HTTPFetcher downloads pages over HTTP. It is safe for concurrent use.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	proxied     bool
	logger      *slog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*options)

type options struct {
	timeout     time.Duration
	userAgent   string
	maxBodySize int64
	proxy       *tor.Proxy
	transport   http.RoundTripper
	sites       *config.File
	logger      *slog.Logger
}

// WithTimeout sets the timeout of one request, redirects included.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithMaxBodySize sets the number of body bytes kept per page; the rest is
// discarded. n <= 0 selects config.DefaultMaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(o *options) { o.maxBodySize = n }
}

// WithProxy routes every request through a SOCKS5 proxy. Onion addresses
// can only be fetched through a proxy.
func WithProxy(p *tor.Proxy) Option {
	return func(o *options) { o.proxy = p }
}

// WithTransport replaces the base transport. Used by tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithSites applies the per-site cookies and headers of the config file.
func WithSites(f *config.File) Option {
	return func(o *options) { o.sites = f }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	o := &options{
		timeout:     config.DefaultTimeout,
		userAgent:   config.DefaultUserAgent,
		maxBodySize: config.DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.maxBodySize <= 0 {
		o.maxBodySize = config.DefaultMaxBodySize
	}

	var transport http.RoundTripper
	switch {
	case o.transport != nil:
		transport = o.transport
	case o.proxy != nil:
		transport = o.proxy.Transport()
	default:
		t := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // documented type
		// Compression is negotiated by the fetcher so brotli can be offered.
		t.DisableCompression = true
		transport = t
	}
	if o.sites != nil {
		transport = &siteTransport{base: transport, sites: o.sites}
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   o.timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:   o.userAgent,
		maxBodySize: o.maxBodySize,
		proxied:     o.proxy != nil,
		logger:      o.logger,
	}
}

// Fetch implements crawler.Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, address string) (crawler.Document, error) {
	return f.FetchPage(ctx, address)
}

// FetchPage downloads address and returns the decoded page.
// A response status of 400 or above is returned as a *StatusError.
func (f *HTTPFetcher) FetchPage(ctx context.Context, address string) (*model.Page, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if tor.IsOnionHost(u.Hostname()) && !f.proxied {
		return nil, ErrOnionWithoutProxy
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Encoding", acceptEncodingHeader)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096) //nolint:errcheck // best effort
		return nil, &StatusError{URL: address, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := decodeContent(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", address, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", address, err)
	}

	contentType := resp.Header.Get("Content-Type")
	page := &model.Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		ContentType: model.MediaType(contentType),
		FetchedAt:   time.Now(),
	}
	page.Raw, err = toUTF8(raw, contentType, page.IsHTML())
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", address, err)
	}
	page.ComputeHash()

	f.logger.Debug("fetched page",
		"address", address,
		"status", resp.StatusCode,
		"bytes", len(page.Raw),
		"elapsed", time.Since(start),
	)
	return page, nil
}

// decodeContent returns a reader that undoes the response's Content-Encoding.
func decodeContent(body io.Reader, contentEncoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return io.NopCloser(body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, contentEncoding)
	}
}

// toUTF8 transcodes raw to UTF-8. The charset comes from the Content-Type
// header; for HTML without one, the document is sniffed (BOM, <meta charset>).
// Unknown charsets leave the body as it is.
func toUTF8(raw []byte, contentType string, isHTML bool) ([]byte, error) {
	var enc encoding.Encoding

	if _, params, err := mime.ParseMediaType(contentType); err == nil && params["charset"] != "" {
		e, err := htmlindex.Get(params["charset"])
		if err != nil {
			return raw, nil
		}
		enc = e
	} else if isHTML {
		// Without a declaration the sniffer falls back to windows-1252 after
		// looking at the first 1KB only; keep bodies that are valid UTF-8.
		e, name, certain := charset.DetermineEncoding(raw, contentType)
		if certain || name != "windows-1252" || !utf8.Valid(raw) {
			enc = e
		}
	}

	if enc == nil || enc == unicode.UTF8 || enc == encoding.Nop {
		return raw, nil
	}

	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return out, nil
}

// Package fetch retrieves pages over HTTP for the crawler.
//
// HTTPFetcher implements crawler.Fetcher. It negotiates brotli and gzip
// compression, transcodes the body to UTF-8 and returns a *model.Page,
// whose ExtractLinks feeds the next level. Requests can be routed through a
// SOCKS5 proxy (see package tor) and decorated with per-site cookies and
// headers from the config file.
//
// CachingFetcher wraps an HTTPFetcher with a PageStore so a page is
// downloaded at most once across runs.
package fetch

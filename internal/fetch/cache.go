package fetch

import (
	"context"
	"log/slog"

	"github.com/nao1215/levelcrawl/internal/crawler"
	"github.com/nao1215/levelcrawl/internal/model"
)

// PageFetcher downloads a page. *HTTPFetcher implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, address string) (*model.Page, error)
}

// PageStore persists pages by the address they were requested with.
// *database.CrawlDB implements it.
type PageStore interface {
	// LoadPage returns the stored page, or ok == false when there is none.
	LoadPage(ctx context.Context, address string) (page *model.Page, ok bool, err error)

	// SavePage stores page under address, replacing any previous entry.
	SavePage(ctx context.Context, address string, page *model.Page) error
}

// CachingFetcher serves pages from a PageStore and falls back to the network
// on a miss, storing what it downloads. Failed fetches are not cached.
//
// Store errors never fail a fetch: a broken cache degrades to plain
// downloading and is reported in the log.
type CachingFetcher struct {
	next   PageFetcher
	store  PageStore
	logger *slog.Logger
}

// NewCachingFetcher wraps next with store.
func NewCachingFetcher(next PageFetcher, store PageStore, logger *slog.Logger) *CachingFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingFetcher{next: next, store: store, logger: logger}
}

// Fetch implements crawler.Fetcher.
func (c *CachingFetcher) Fetch(ctx context.Context, address string) (crawler.Document, error) {
	return c.FetchPage(ctx, address)
}

// FetchPage returns the cached page for address or downloads and caches it.
func (c *CachingFetcher) FetchPage(ctx context.Context, address string) (*model.Page, error) {
	page, ok, err := c.store.LoadPage(ctx, address)
	switch {
	case err != nil:
		c.logger.Warn("page cache lookup failed", "address", address, "error", err)
	case ok:
		c.logger.Debug("page cache hit", "address", address)
		page.FromCache = true
		return page, nil
	}

	page, err = c.next.FetchPage(ctx, address)
	if err != nil {
		return nil, err
	}

	if err := c.store.SavePage(ctx, address, page); err != nil {
		c.logger.Warn("page cache store failed", "address", address, "error", err)
	}
	return page, nil
}

package crawler

import (
	"context"
	"fmt"
	"net/url"
)

// Fetcher retrieves the resource behind an address.
// Implementations must honor ctx cancellation; the engine relies on it to
// unwind blocked fetch workers. A caching layer may sit behind Fetch.
type Fetcher interface {
	Fetch(ctx context.Context, address string) (Document, error)
}

// FetcherFunc adapts an ordinary function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, address string) (Document, error)

// Fetch calls f(ctx, address).
func (f FetcherFunc) Fetch(ctx context.Context, address string) (Document, error) {
	return f(ctx, address)
}

// Document is fetched content that can be scanned for outbound references.
type Document interface {
	// ExtractLinks returns the addresses referenced by the document.
	// It is called at most once per document, from an extraction worker.
	ExtractLinks() ([]string, error)
}

// OriginFunc derives the throttle key of an address.
type OriginFunc func(address string) (string, error)

// HostOf is the default OriginFunc. It returns the host name of a URL,
// without port. Equal host names share one gate.
func HostOf(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("parse address: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", ErrNoHost
	}
	return host, nil
}

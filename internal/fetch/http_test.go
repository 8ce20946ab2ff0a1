package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/nao1215/levelcrawl/internal/config"
	"github.com/nao1215/levelcrawl/internal/crawler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(opts ...Option) *HTTPFetcher {
	return NewHTTPFetcher(append([]Option{WithLogger(discardLogger()), WithTimeout(5 * time.Second)}, opts...)...)
}

// TestHTTPFetcher tests page retrieval against httptest servers.
func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	t.Run("fetches html and extracts links", func(t *testing.T) {
		t.Parallel()

		received := make(chan http.Header, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received <- r.Header.Clone()
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body><a href="/next">next</a></body></html>`))
		}))
		defer server.Close()

		f := newTestFetcher(WithUserAgent("test-agent"))
		page, err := f.FetchPage(context.Background(), server.URL+"/start")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		header := <-received
		gotUA, gotAccept, gotEncoding := header.Get("User-Agent"), header.Get("Accept"), header.Get("Accept-Encoding")
		if gotUA != "test-agent" {
			t.Errorf("expected user agent test-agent, got %q", gotUA)
		}
		if !strings.Contains(gotAccept, "text/html") {
			t.Errorf("unexpected Accept %q", gotAccept)
		}
		if gotEncoding != "br, gzip" {
			t.Errorf("unexpected Accept-Encoding %q", gotEncoding)
		}
		if page.StatusCode != http.StatusOK || page.ContentType != "text/html" {
			t.Errorf("unexpected page %+v", page)
		}
		if page.Hash == "" || page.FetchedAt.IsZero() {
			t.Error("expected hash and fetch time to be set")
		}

		links, err := page.ExtractLinks()
		if err != nil {
			t.Fatalf("unexpected extract error: %v", err)
		}
		if !slices.Equal(links, []string{server.URL + "/next"}) {
			t.Errorf("unexpected links %v", links)
		}
	})

	t.Run("implements crawler.Fetcher", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<a href="/x">x</a>`))
		}))
		defer server.Close()

		var f crawler.Fetcher = newTestFetcher()
		doc, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		links, err := doc.ExtractLinks()
		if err != nil || len(links) != 1 {
			t.Errorf("expected one link, got %v (%v)", links, err)
		}
	})

	t.Run("decodes brotli", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Encoding", "br")
			bw := brotli.NewWriter(w)
			_, _ = bw.Write([]byte(`<a href="/brotli">b</a>`))
			_ = bw.Close()
		}))
		defer server.Close()

		page, err := newTestFetcher().FetchPage(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(string(page.Raw), "/brotli") {
			t.Errorf("body not decoded: %q", page.Raw)
		}
	})

	t.Run("decodes gzip", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Encoding", "gzip")
			gw := gzip.NewWriter(w)
			_, _ = gw.Write([]byte(`<a href="/gzip">g</a>`))
			_ = gw.Close()
		}))
		defer server.Close()

		page, err := newTestFetcher().FetchPage(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(string(page.Raw), "/gzip") {
			t.Errorf("body not decoded: %q", page.Raw)
		}
	})

	t.Run("rejects unknown content encoding", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Encoding", "compress")
			_, _ = w.Write([]byte("???"))
		}))
		defer server.Close()

		_, err := newTestFetcher().FetchPage(context.Background(), server.URL)
		if !errors.Is(err, ErrUnsupportedEncoding) {
			t.Errorf("expected ErrUnsupportedEncoding, got %v", err)
		}
	})

	t.Run("transcodes declared charset to utf-8", func(t *testing.T) {
		t.Parallel()

		enc, err := htmlindex.Get("shift_jis")
		if err != nil {
			t.Fatalf("failed to get encoding: %v", err)
		}
		body, err := enc.NewEncoder().Bytes([]byte(`<title>日本語</title>`))
		if err != nil {
			t.Fatalf("failed to encode: %v", err)
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=Shift_JIS")
			_, _ = w.Write(body)
		}))
		defer server.Close()

		page, err := newTestFetcher().FetchPage(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(string(page.Raw), "日本語") {
			t.Errorf("expected UTF-8 body, got %q", page.Raw)
		}
	})

	t.Run("honours meta charset", func(t *testing.T) {
		t.Parallel()

		enc, err := htmlindex.Get("iso-8859-1")
		if err != nil {
			t.Fatalf("failed to get encoding: %v", err)
		}
		body, err := enc.NewEncoder().Bytes([]byte(`<meta charset="iso-8859-1"><title>café</title>`))
		if err != nil {
			t.Fatalf("failed to encode: %v", err)
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write(body)
		}))
		defer server.Close()

		page, err := newTestFetcher().FetchPage(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(string(page.Raw), "café") {
			t.Errorf("expected UTF-8 body, got %q", page.Raw)
		}
	})

	t.Run("status 400 and above is a StatusError", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.NotFound(w, nil)
		}))
		defer server.Close()

		_, err := newTestFetcher().FetchPage(context.Background(), server.URL+"/missing")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected StatusError, got %v", err)
		}
		if statusErr.Code != http.StatusNotFound || !strings.HasSuffix(statusErr.URL, "/missing") {
			t.Errorf("unexpected status error %+v", statusErr)
		}
	})

	t.Run("truncates large bodies", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(bytes.Repeat([]byte("a"), 1000))
		}))
		defer server.Close()

		page, err := newTestFetcher(WithMaxBodySize(100)).FetchPage(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Raw) != 100 {
			t.Errorf("expected 100 bytes, got %d", len(page.Raw))
		}
	})

	t.Run("zero body limit keeps the default", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><a href="/next">next</a></body></html>`))
		}))
		defer server.Close()

		for _, limit := range []int64{0, -1} {
			f := newTestFetcher(WithMaxBodySize(limit))
			if f.maxBodySize != config.DefaultMaxBodySize {
				t.Errorf("limit %d: maxBodySize = %d, want %d", limit, f.maxBodySize, config.DefaultMaxBodySize)
			}
			page, err := f.FetchPage(context.Background(), server.URL)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			links, err := page.ExtractLinks()
			if err != nil || len(links) != 1 || !strings.HasSuffix(links[0], "/next") {
				t.Errorf("limit %d: links = %v (%v), want /next", limit, links, err)
			}
		}
	})

	t.Run("resolves links against the final URL after redirects", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/new/dir/", http.StatusMovedPermanently)
		})
		mux.HandleFunc("/new/dir/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<a href="child">c</a>`))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		page, err := newTestFetcher().FetchPage(context.Background(), server.URL+"/old")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		links, err := page.ExtractLinks()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(links, []string{server.URL + "/new/dir/child"}) {
			t.Errorf("unexpected links %v", links)
		}
	})

	t.Run("injects site cookie and headers", func(t *testing.T) {
		t.Parallel()

		received := make(chan http.Header, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received <- r.Header.Clone()
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		sites := &config.File{Sites: map[string]config.SiteConfig{
			"127.0.0.1": {Cookie: "session=abc", Headers: map[string]string{"X-Test": "yes"}},
		}}
		if _, err := newTestFetcher(WithSites(sites)).FetchPage(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		header := <-received
		gotCookie, gotHeader := header.Get("Cookie"), header.Get("X-Test")
		if gotCookie != "session=abc" || gotHeader != "yes" {
			t.Errorf("expected injected cookie and header, got %q and %q", gotCookie, gotHeader)
		}
	})

	t.Run("rejects onion addresses without a proxy", func(t *testing.T) {
		t.Parallel()

		_, err := newTestFetcher().FetchPage(context.Background(), "http://example.onion/")
		if !errors.Is(err, ErrOnionWithoutProxy) {
			t.Errorf("expected ErrOnionWithoutProxy, got %v", err)
		}
	})

	t.Run("rejects unsupported schemes", func(t *testing.T) {
		t.Parallel()

		_, err := newTestFetcher().FetchPage(context.Background(), "ftp://example.com/file")
		if !errors.Is(err, ErrUnsupportedScheme) {
			t.Errorf("expected ErrUnsupportedScheme, got %v", err)
		}
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := newTestFetcher().FetchPage(ctx, server.URL)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nao1215/levelcrawl/internal/model"
)

// memStore is an in-memory PageStore.
type memStore struct {
	mu      sync.Mutex
	pages   map[string]*model.Page
	loadErr error
	saveErr error
	saves   atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{pages: make(map[string]*model.Page)}
}

func (s *memStore) LoadPage(_ context.Context, address string) (*model.Page, bool, error) {
	if s.loadErr != nil {
		return nil, false, s.loadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[address]
	if !ok {
		return nil, false, nil
	}
	cp := *p
	return &cp, true, nil
}

func (s *memStore) SavePage(_ context.Context, address string, page *model.Page) error {
	s.saves.Add(1)
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[address] = page
	return nil
}

// countingFetcher returns a fixed page and counts calls.
type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) FetchPage(_ context.Context, address string) (*model.Page, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &model.Page{URL: address, StatusCode: 200, ContentType: "text/html", Raw: []byte("<a href=/x>")}, nil
}

// TestCachingFetcher tests the page cache wrapper.
func TestCachingFetcher(t *testing.T) {
	t.Parallel()

	t.Run("miss fetches and stores, hit serves from cache", func(t *testing.T) {
		t.Parallel()

		next := &countingFetcher{}
		store := newMemStore()
		c := NewCachingFetcher(next, store, discardLogger())

		first, err := c.FetchPage(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.FromCache {
			t.Error("first fetch must come from the network")
		}

		second, err := c.FetchPage(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !second.FromCache {
			t.Error("second fetch must come from the cache")
		}
		if next.calls.Load() != 1 {
			t.Errorf("expected 1 network fetch, got %d", next.calls.Load())
		}

		doc, err := c.Fetch(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if links, err := doc.ExtractLinks(); err != nil || len(links) != 1 {
			t.Errorf("expected cached page to yield its link, got %v (%v)", links, err)
		}
	})

	t.Run("fetch errors are not cached", func(t *testing.T) {
		t.Parallel()

		fetchErr := errors.New("connection refused")
		next := &countingFetcher{err: fetchErr}
		store := newMemStore()
		c := NewCachingFetcher(next, store, discardLogger())

		for range 2 {
			if _, err := c.FetchPage(context.Background(), "http://example.com/"); !errors.Is(err, fetchErr) {
				t.Fatalf("expected fetch error, got %v", err)
			}
		}
		if store.saves.Load() != 0 || next.calls.Load() != 2 {
			t.Errorf("expected no saves and 2 fetches, got %d and %d", store.saves.Load(), next.calls.Load())
		}
	})

	t.Run("store failures degrade to plain fetching", func(t *testing.T) {
		t.Parallel()

		next := &countingFetcher{}
		store := newMemStore()
		store.loadErr = errors.New("database is locked")
		store.saveErr = errors.New("disk full")
		c := NewCachingFetcher(next, store, discardLogger())

		page, err := c.FetchPage(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.FromCache {
			t.Error("expected network page")
		}
	})
}

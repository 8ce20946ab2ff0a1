package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Crawler is the traversal engine. It owns a fetch pool, an extraction pool
// and a HostThrottle, all shared by every Traverse call until Close.
// Traverse may be called from several goroutines at once; each call keeps
// its own ledgers.
type Crawler struct {
	fetcher  Fetcher
	originOf OriginFunc

	// downloaders is the number of fetch workers.
	downloaders int

	// extractors is the number of extraction workers.
	extractors int

	// perHost is the maximum number of in-flight fetches per origin.
	perHost int

	throttle    *HostThrottle
	fetchPool   *Pool
	extractPool *Pool

	logger *slog.Logger

	// ctx is cancelled by Close; running traversals observe it.
	ctx    context.Context
	cancel context.CancelCauseFunc

	// interruption is the first cancellation cause observed by a traversal.
	mu           sync.Mutex
	interruption error

	closeOnce sync.Once
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithDownloaders sets the number of fetch workers. Default is 1.
func WithDownloaders(n int) Option {
	return func(c *Crawler) {
		c.downloaders = n
	}
}

// WithExtractors sets the number of extraction workers. Default is 1.
func WithExtractors(n int) Option {
	return func(c *Crawler) {
		c.extractors = n
	}
}

// WithPerHost sets the per-origin concurrency limit. Default is 1.
func WithPerHost(n int) Option {
	return func(c *Crawler) {
		c.perHost = n
	}
}

// WithOriginFunc replaces HostOf as the origin resolver.
func WithOriginFunc(f OriginFunc) Option {
	return func(c *Crawler) {
		if f != nil {
			c.originOf = f
		}
	}
}

// WithLogger sets the logger. slog.Default() is used when nil.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// New creates a Crawler and starts its worker pools.
func New(fetcher Fetcher, opts ...Option) (*Crawler, error) {
	if fetcher == nil {
		return nil, ErrNilFetcher
	}

	c := &Crawler{
		fetcher:     fetcher,
		originOf:    HostOf,
		downloaders: 1,
		extractors:  1,
		perHost:     1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	throttle, err := NewHostThrottle(c.perHost)
	if err != nil {
		return nil, err
	}
	c.throttle = throttle

	c.fetchPool, err = NewPool("fetch", c.downloaders, c.logger)
	if err != nil {
		return nil, err
	}
	c.extractPool, err = NewPool("extract", c.extractors, c.logger)
	if err != nil {
		c.fetchPool.Close()
		return nil, err
	}

	c.ctx, c.cancel = context.WithCancelCause(context.Background())
	return c, nil
}

// Traverse visits seed and everything reachable from it within depth
// levels. Depth 1 fetches only the seed. Depth 0 or less returns an empty
// Result without fetching anything.
//
// Addresses containing any of the excludes substrings are skipped without
// being fetched or recorded.
//
// Per-address failures are reported in Result.Errors. The returned error is
// non-nil only when the traversal stopped early: it wraps ErrInterrupted
// when ctx was cancelled or the Crawler was closed, and ErrTaskPanic when a
// task of this traversal panicked outside the recovery that attributes
// panics to an address. The partial Result is returned in both cases.
//
// Empty strings in excludes are ignored: as substrings they would match
// every address, seed included.
func (c *Crawler) Traverse(ctx context.Context, seed string, depth int, excludes []string) (*Result, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}

	agg := newAggregator()
	if depth <= 0 {
		return agg.Result(), nil
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(c.ctx, func() {
		cancel(context.Cause(c.ctx))
	})
	defer stop()

	t := c.newTraversal(runCtx, seed, excludes, agg)

	startTime := time.Now()
	t.logger.Info("starting traversal", "depth", depth)

	frontier := []string{seed}
	for remaining := depth; remaining > 0 && len(frontier) > 0; remaining-- {
		next, err := t.runLevel(frontier, remaining)
		if err != nil {
			if errors.Is(err, ErrTaskPanic) {
				return agg.Result(), err
			}
			c.recordInterruption(err)
			t.logger.Warn("traversal interrupted", "remaining", remaining, "reason", err)
			return agg.Result(), interrupted(err)
		}
		frontier = next
	}

	visited, failed := agg.Counts()
	t.logger.Info("traversal complete",
		"visited", visited,
		"failed", failed,
		"elapsed", time.Since(startTime),
	)
	return agg.Result(), nil
}

// Close shuts the pools down, cancelling every running traversal, and waits
// for the workers to exit. It returns an error wrapping ErrInterrupted if any
// traversal was cancelled during the Crawler's lifetime, so the caller can
// propagate the cancellation. Close may be called more than once.
func (c *Crawler) Close() error {
	c.closeOnce.Do(func() {
		c.cancel(ErrClosed)
		c.fetchPool.Close()
		c.extractPool.Close()
		c.logger.Debug("crawler closed", "origins", c.throttle.Origins())
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	return interrupted(c.interruption)
}

// Interrupted reports whether any traversal has been cancelled.
func (c *Crawler) Interrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interruption != nil
}

// Throttle exposes the per-origin gates.
func (c *Crawler) Throttle() *HostThrottle {
	return c.throttle
}

func (c *Crawler) recordInterruption(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interruption == nil {
		c.interruption = cause
	}
}

// traversal is the state of one Traverse call.
type traversal struct {
	crawler  *Crawler
	ctx      context.Context
	excludes []string
	agg      *aggregator
	logger   *slog.Logger

	// faults holds panics of this traversal's tasks that no address could
	// be charged with.
	faultsMu sync.Mutex
	faults   *multierror.Error
}

func (c *Crawler) newTraversal(ctx context.Context, seed string, excludes []string, agg *aggregator) *traversal {
	return &traversal{
		crawler:  c,
		ctx:      ctx,
		excludes: compactFilters(excludes),
		agg:      agg,
		logger:   c.logger.With("seed", seed),
	}
}

// guard wraps a task of this traversal so that a panic escaping the task's
// own recovery is recorded here instead of on the shared pool.
func (t *traversal) guard(task Task) Task {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				t.faultsMu.Lock()
				t.faults = multierror.Append(t.faults, fmt.Errorf("%w: %v", ErrTaskPanic, r))
				t.faultsMu.Unlock()
			}
		}()
		task()
	}
}

// takeFaults returns the recorded faults and forgets them.
func (t *traversal) takeFaults() error {
	t.faultsMu.Lock()
	defer t.faultsMu.Unlock()

	err := t.faults.ErrorOrNil()
	t.faults = nil
	return err
}

// runLevel fetches every address of frontier and returns the next frontier.
// remaining is the number of levels left including this one; at the last
// level documents are not scanned for links.
func (t *traversal) runLevel(frontier []string, remaining int) ([]string, error) {
	t.logger.Debug("starting level", "remaining", remaining, "addresses", len(frontier))

	barrier := NewLevelBarrier()
	candidates := newStringSet()

	for _, address := range frontier {
		barrier.Register()
		err := t.crawler.fetchPool.Submit(t.ctx, t.guard(func() {
			t.fetch(address, remaining, barrier, candidates)
		}))
		if err != nil {
			barrier.Arrive()
			return nil, fmt.Errorf("dispatch %s: %w", address, err)
		}
	}

	if err := barrier.ArriveAndWait(t.ctx); err != nil {
		return nil, err
	}
	// The level may have drained only because its tasks saw the cancellation.
	if err := context.Cause(t.ctx); err != nil {
		return nil, err
	}

	if err := t.takeFaults(); err != nil {
		t.logger.Warn("level finished with task faults", "remaining", remaining, "error", err)
		return nil, fmt.Errorf("level %d: %w", remaining, err)
	}

	next := t.agg.Unhandled(candidates.Drain())
	visited, failed := t.agg.Counts()
	t.logger.Debug("level complete",
		"remaining", remaining,
		"visited", visited,
		"failed", failed,
		"next", len(next),
	)
	return next, nil
}

// fetch is the fetch-stage task for one address.
func (t *traversal) fetch(address string, remaining int, barrier *LevelBarrier, candidates *stringSet) {
	defer barrier.Arrive()
	defer t.recoverInto(OpFetch, address)

	if t.excluded(address) {
		t.logger.Debug("address excluded", "address", address)
		return
	}
	if t.ctx.Err() != nil {
		return
	}

	origin, err := t.crawler.originOf(address)
	if err != nil {
		t.fail(OpOrigin, address, err)
		return
	}

	release, err := t.crawler.throttle.Acquire(t.ctx, origin)
	if err != nil {
		// Cancelled while waiting; no permit is held.
		return
	}
	defer release()

	doc, err := t.crawler.fetcher.Fetch(t.ctx, address)
	if err != nil {
		if t.ctx.Err() != nil {
			return
		}
		t.fail(OpFetch, address, err)
		return
	}

	if remaining == 1 {
		t.agg.MarkVisited(address)
		return
	}

	barrier.Register()
	err = t.crawler.extractPool.Submit(t.ctx, t.guard(func() {
		t.extract(address, doc, barrier, candidates)
	}))
	if err != nil {
		barrier.Arrive()
	}
}

// extract is the extraction-stage task for one fetched document.
func (t *traversal) extract(address string, doc Document, barrier *LevelBarrier, candidates *stringSet) {
	defer barrier.Arrive()
	defer t.recoverInto(OpExtract, address)

	// Queued tasks are still run by Pool.Close after the traversal returned.
	if t.ctx.Err() != nil {
		return
	}

	links, err := doc.ExtractLinks()
	if err != nil {
		t.fail(OpExtract, address, err)
		return
	}

	candidates.AddAll(links)
	t.agg.MarkVisited(address)
}

// recoverInto converts a panic in a task into an address failure.
// It must be deferred directly by the task.
func (t *traversal) recoverInto(op, address string) {
	if r := recover(); r != nil {
		t.logger.Error("task panicked", "op", op, "address", address, "panic", r)
		t.agg.MarkFailed(address, &AddressError{
			Op:      op,
			Address: address,
			Err:     fmt.Errorf("%w: %v", ErrTaskPanic, r),
		})
	}
}

func (t *traversal) fail(op, address string, err error) {
	t.logger.Debug("address failed", "op", op, "address", address, "error", err)
	t.agg.MarkFailed(address, &AddressError{Op: op, Address: address, Err: err})
}

// excluded reports whether address contains any exclusion filter.
func (t *traversal) excluded(address string) bool {
	for _, f := range t.excludes {
		if strings.Contains(address, f) {
			return true
		}
	}
	return false
}

// compactFilters drops empty exclusion filters, which would otherwise match
// every address.
func compactFilters(filters []string) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

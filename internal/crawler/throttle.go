package crawler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// HostThrottle bounds the number of in-flight fetches per origin.
//
// Gates are created the first time an origin is seen and kept for the life
// of the throttle, so the registry only grows. Origin cardinality is bounded
// by the number of addresses crawled.
type HostThrottle struct {
	// limit is the weight of every gate.
	limit int64

	// mu guards gates. Lookup and insertion happen under one critical
	// section, so concurrent first use of an origin yields a single gate.
	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

// NewHostThrottle creates a throttle that admits up to limit concurrent
// holders per origin.
func NewHostThrottle(limit int) (*HostThrottle, error) {
	if limit <= 0 {
		return nil, ErrInvalidPerHost
	}
	return &HostThrottle{
		limit: int64(limit),
		gates: make(map[string]*semaphore.Weighted),
	}, nil
}

// gate returns the gate of origin, creating it if needed.
func (t *HostThrottle) gate(origin string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.gates[origin]
	if !ok {
		g = semaphore.NewWeighted(t.limit)
		t.gates[origin] = g
	}
	return g
}

// Acquire blocks until origin has a free slot or ctx is done.
//
// On success it returns a release function that must be called exactly once;
// extra calls are ignored. When ctx ends first, Acquire returns ctx.Err() and
// holds nothing.
func (t *HostThrottle) Acquire(ctx context.Context, origin string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := t.gate(origin)
	if err := g.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.Release(1) })
	}, nil
}

// Limit returns the per-origin limit.
func (t *HostThrottle) Limit() int {
	return int(t.limit)
}

// Origins returns the number of origins seen so far.
func (t *HostThrottle) Origins() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.gates)
}

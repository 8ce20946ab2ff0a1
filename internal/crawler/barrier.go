package crawler

import (
	"context"
	"sync"
)

// LevelBarrier lets the orchestrator wait for every task of one level,
// including tasks registered while the wait is already in progress.
//
// The barrier starts with a master registration held by the orchestrator.
// Each task registers before it is submitted and arrives when it finishes.
// A fetch task registers its extraction task before arriving itself, so the
// count cannot reach zero while work derived from the level is pending.
type LevelBarrier struct {
	wg sync.WaitGroup
}

// NewLevelBarrier returns a barrier holding the master registration.
func NewLevelBarrier() *LevelBarrier {
	b := &LevelBarrier{}
	b.wg.Add(1)
	return b
}

// Register adds one participant. It must be called before the task that
// will Arrive is handed to a pool.
func (b *LevelBarrier) Register() {
	b.wg.Add(1)
}

// Arrive removes one participant.
func (b *LevelBarrier) Arrive() {
	b.wg.Done()
}

// ArriveAndWait drops the master registration and blocks until every
// participant has arrived or ctx is done. It must be called once.
func (b *LevelBarrier) ArriveAndWait(ctx context.Context) error {
	b.wg.Done()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

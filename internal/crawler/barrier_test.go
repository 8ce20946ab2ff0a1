package crawler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLevelBarrier(t *testing.T) {
	t.Parallel()

	t.Run("no participants returns at once", func(t *testing.T) {
		t.Parallel()

		b := NewLevelBarrier()
		if err := b.ArriveAndWait(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("waits for late registrations", func(t *testing.T) {
		t.Parallel()

		b := NewLevelBarrier()
		var extracted atomic.Bool

		b.Register()
		go func() {
			// A fetch task registers its follow-up before arriving.
			b.Register()
			go func() {
				time.Sleep(20 * time.Millisecond)
				extracted.Store(true)
				b.Arrive()
			}()
			b.Arrive()
		}()

		if err := b.ArriveAndWait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !extracted.Load() {
			t.Error("barrier released before the follow-up task arrived")
		}
	})

	t.Run("cancellation releases the waiter with the cause", func(t *testing.T) {
		t.Parallel()

		b := NewLevelBarrier()
		b.Register()
		defer b.Arrive()

		cause := errors.New("shutting down")
		ctx, cancel := context.WithCancelCause(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel(cause)
		}()

		if err := b.ArriveAndWait(ctx); !errors.Is(err, cause) {
			t.Errorf("expected cause, got %v", err)
		}
	})
}

// Package crawler provides the level-synchronized traversal engine.
//
// # Architecture
//
// The Crawler visits the web graph breadth first, one level at a time.
// Every level runs through a two-stage pipeline:
//
//   - a fetch Pool that resolves each address's origin, waits for a slot on
//     that origin's gate (HostThrottle) and calls the Fetcher
//   - an extraction Pool that turns successfully fetched documents into the
//     candidate addresses of the next level
//
// A LevelBarrier holds the orchestrator until every fetch task and every
// extraction task spawned for the level has finished, so level d is settled
// before any fetch of level d-1 is dispatched.
//
// # Components
//
//   - Crawler: lifecycle wrapper that owns the pools and the throttle
//   - HostThrottle: per-origin admission gates, created on first use
//   - Pool: fixed set of worker goroutines fed through a task queue
//   - LevelBarrier: master-held wait group for one level
//   - Result: visited addresses in completion order plus per-address errors
//
// # Usage
//
//	c, err := crawler.New(fetcher,
//		crawler.WithDownloaders(8),
//		crawler.WithExtractors(4),
//		crawler.WithPerHost(2),
//	)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	result, err := c.Traverse(ctx, "https://example.com/", 3, []string{"/logout"})
//
// # Failures
//
// Fetch, extraction and origin failures are recorded per address in
// Result.Errors and never stop sibling tasks. Cancellation of the context,
// or closing the Crawler, unwinds every blocking wait and is reported by both
// Traverse and Close as ErrInterrupted.
package crawler

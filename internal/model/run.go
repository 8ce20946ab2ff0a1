package model

import (
	"sort"
	"time"
)

// CrawlRun is a finished traversal.
//
// Runs are stored in the history database and rendered by the report
// writers. Interrupted runs are stored too; their Visited and Failures hold
// what was known when the traversal stopped.
type CrawlRun struct {
	// ID is the database identifier. Zero until the run is saved.
	ID int64 `json:"id,omitempty"`

	// Seed is the starting address.
	Seed string `json:"seed"`

	// Depth is the requested number of levels.
	Depth int `json:"depth"`

	// Downloaders, Extractors and PerHost are the engine budgets.
	Downloaders int `json:"downloaders"`
	Extractors  int `json:"extractors"`
	PerHost     int `json:"per_host"`

	// Excludes are the exclusion filters in effect.
	Excludes []string `json:"excludes,omitempty"`

	// StartedAt is when the traversal began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall-clock time of the traversal.
	Duration time.Duration `json:"duration"`

	// Visited lists the successfully visited addresses in completion order.
	Visited []string `json:"visited"`

	// Failures lists the failed addresses, sorted by address.
	Failures []CrawlFailure `json:"failures"`

	// Interrupted is true when the traversal was cancelled before finishing.
	Interrupted bool `json:"interrupted"`

	// Error is the traversal-level error message, if any.
	Error string `json:"error,omitempty"`
}

// CrawlFailure is one failed address of a run.
type CrawlFailure struct {
	// Address is the failed address.
	Address string `json:"address"`

	// Op is the stage that failed ("origin", "fetch" or "extract").
	Op string `json:"op"`

	// Message is the error text.
	Message string `json:"message"`
}

// SortFailures orders Failures by address.
func (r *CrawlRun) SortFailures() {
	sort.Slice(r.Failures, func(i, j int) bool {
		return r.Failures[i].Address < r.Failures[j].Address
	})
}

// FailuresByOp counts failures per stage.
func (r *CrawlRun) FailuresByOp() map[string]int {
	counts := make(map[string]int)
	for _, f := range r.Failures {
		counts[f.Op]++
	}
	return counts
}

package crawler

import (
	"slices"
	"sync"
)

// stringSet is a set of addresses safe for concurrent use.
// It backs the candidate set of the next level.
type stringSet struct {
	mu    sync.Mutex
	items map[string]struct{}
}

func newStringSet() *stringSet {
	return &stringSet{items: make(map[string]struct{})}
}

// AddAll inserts every element of vs.
func (s *stringSet) AddAll(vs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vs {
		s.items[v] = struct{}{}
	}
}

// Drain empties the set and returns its former contents, sorted.
func (s *stringSet) Drain() []string {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]struct{})
	s.mu.Unlock()

	out := make([]string, 0, len(items))
	for v := range items {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// aggregator accumulates the visited and error ledgers of one traversal.
//
// Both ledgers live behind one mutex so that "visited or failed, never
// both" is decided atomically. Entries are never removed.
type aggregator struct {
	mu      sync.Mutex
	visited []string
	handled map[string]struct{}
	errors  map[string]error
}

func newAggregator() *aggregator {
	return &aggregator{
		visited: make([]string, 0),
		handled: make(map[string]struct{}),
		errors:  make(map[string]error),
	}
}

// MarkVisited records a successful visit. It reports false when the address
// already sits in either ledger.
func (a *aggregator) MarkVisited(address string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.handled[address]; ok {
		return false
	}
	a.handled[address] = struct{}{}
	a.visited = append(a.visited, address)
	return true
}

// MarkFailed records the failure cause of an address. It reports false when
// the address already sits in either ledger.
func (a *aggregator) MarkFailed(address string, cause error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.handled[address]; ok {
		return false
	}
	a.handled[address] = struct{}{}
	a.errors[address] = cause
	return true
}

// Unhandled filters out addresses present in either ledger.
func (a *aggregator) Unhandled(candidates []string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := a.handled[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Counts returns the sizes of the visited and error ledgers.
func (a *aggregator) Counts() (visited, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.visited), len(a.errors)
}

// Result snapshots both ledgers.
func (a *aggregator) Result() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	errs := make(map[string]error, len(a.errors))
	for k, v := range a.errors {
		errs[k] = v
	}
	return &Result{
		Downloaded: slices.Clone(a.visited),
		Errors:     errs,
	}
}

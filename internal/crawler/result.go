package crawler

import (
	"errors"
	"sort"
)

// Result is the outcome of one traversal.
type Result struct {
	// Downloaded lists the successfully visited addresses in the order their
	// processing completed.
	Downloaded []string

	// Errors maps every failed address to its cause, an *AddressError.
	Errors map[string]error
}

// FailedAddresses returns the keys of Errors, sorted.
func (r *Result) FailedAddresses() []string {
	out := make([]string, 0, len(r.Errors))
	for addr := range r.Errors {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// CountByOp tallies failures by AddressError.Op.
// Failures that are not an *AddressError are counted under "unknown".
func (r *Result) CountByOp() map[string]int {
	counts := make(map[string]int)
	for _, err := range r.Errors {
		var addrErr *AddressError
		if errors.As(err, &addrErr) {
			counts[addrErr.Op]++
			continue
		}
		counts["unknown"]++
	}
	return counts
}

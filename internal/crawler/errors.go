package crawler

import (
	"errors"
	"fmt"
)

// Engine errors.
// Callers use errors.Is to tell engine-level conditions apart from the
// per-address failures stored in Result.Errors.
var (
	// ErrClosed is returned when work is submitted to a closed Crawler or Pool.
	ErrClosed = errors.New("crawler is closed")

	// ErrInterrupted marks a traversal that was cancelled before it finished.
	// It always wraps the cancellation cause (context.Canceled,
	// context.DeadlineExceeded or ErrClosed).
	ErrInterrupted = errors.New("crawl interrupted")

	// ErrTaskPanic wraps a panic recovered inside a fetch or extraction task.
	ErrTaskPanic = errors.New("task panicked")

	// ErrInvalidPoolSize is returned when a pool is configured with no workers.
	ErrInvalidPoolSize = errors.New("invalid pool size: must be positive")

	// ErrInvalidPerHost is returned when the per-origin limit is not positive.
	ErrInvalidPerHost = errors.New("invalid per-host limit: must be positive")

	// ErrNilFetcher is returned by New when no Fetcher is given.
	ErrNilFetcher = errors.New("fetcher is required")

	// ErrNoHost is returned by HostOf for addresses without a host part.
	ErrNoHost = errors.New("address has no host")
)

// Operations recorded in AddressError.Op.
const (
	// OpOrigin means the origin of the address could not be determined.
	OpOrigin = "origin"
	// OpFetch means retrieving the address failed.
	OpFetch = "fetch"
	// OpExtract means the fetched content could not be scanned for links.
	OpExtract = "extract"
)

// AddressError is the failure cause stored for an address in Result.Errors.
type AddressError struct {
	// Op is one of OpOrigin, OpFetch or OpExtract.
	Op string

	// Address is the address that failed.
	Address string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *AddressError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AddressError) Unwrap() error {
	return e.Err
}

// interrupted wraps a cancellation cause so that both ErrInterrupted and the
// cause itself match with errors.Is.
func interrupted(cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, cause)
}

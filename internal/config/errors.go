package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when neither a seed address nor --list is given.
	ErrNoTarget = errors.New("no target specified: provide a seed address or use --list")

	// ErrInvalidDepth is returned when the depth is negative.
	ErrInvalidDepth = errors.New("invalid depth: must be non-negative")

	// ErrInvalidDownloaders is returned when the fetch pool size is not positive.
	ErrInvalidDownloaders = errors.New("invalid downloaders: must be positive")

	// ErrInvalidExtractors is returned when the extraction pool size is not positive.
	ErrInvalidExtractors = errors.New("invalid extractors: must be positive")

	// ErrInvalidPerHost is returned when the per-host limit is not positive.
	ErrInvalidPerHost = errors.New("invalid per-host limit: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingProxy is returned when both --tor and --proxy are specified.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --tor and --proxy cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)

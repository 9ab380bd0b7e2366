package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so callers can use errors.Is().
var (
	// ErrNoRoot is returned when no directory to scan is specified.
	ErrNoRoot = errors.New("no root specified: provide a directory to scan")

	// ErrInvalidThreshold is returned when the entropy threshold is outside [0, 8].
	ErrInvalidThreshold = errors.New("invalid entropy threshold: must be between 0 and 8")

	// ErrInvalidWindow is returned when the sample window is not positive.
	ErrInvalidWindow = errors.New("invalid sample window: must be positive")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidQueueCapacity is returned when the queue capacity is negative.
	ErrInvalidQueueCapacity = errors.New("invalid queue capacity: must be non-negative")

	// ErrInvalidMinSize is returned when the minimum file size is negative.
	ErrInvalidMinSize = errors.New("invalid minimum file size: must be non-negative")

	// ErrInvalidSectorSize is returned when alignment is required but the
	// sector size is not positive.
	ErrInvalidSectorSize = errors.New("invalid sector size: must be positive")

	// ErrInvalidProgressInterval is returned when the progress interval is negative.
	ErrInvalidProgressInterval = errors.New("invalid progress interval: must be non-negative")

	// ErrInvalidExcludePattern is returned for malformed glob patterns.
	ErrInvalidExcludePattern = errors.New("invalid exclude pattern")

	// ErrUnknownReportFormat is returned for unsupported report formats.
	ErrUnknownReportFormat = errors.New("unknown report format: use text, markdown or json")

	// ErrConflictingOutputFormats is returned when a report would be written
	// to standard output together with the JSON Lines finding stream.
	ErrConflictingOutputFormats = errors.New("conflicting output formats: --json with --report requires --output")
)

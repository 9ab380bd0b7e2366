package filter

import (
	"github.com/nao1215/tchunt/internal/model"
)

const (
	// DefaultMinSize is the smallest file size evaluated by default (10 MiB).
	DefaultMinSize int64 = 10 << 20

	// DefaultSectorSize is the alignment unit containers are created with.
	DefaultSectorSize int64 = 512
)

// Verdict is the outcome of a filter check.
type Verdict int

const (
	// Accepted means the entry should be evaluated.
	Accepted Verdict = iota

	// RejectedDirectory means the entry is a directory.
	RejectedDirectory

	// RejectedNotRegular means the entry is a symlink, device, socket or pipe.
	RejectedNotRegular

	// RejectedTooSmall means the entry is below the minimum size.
	RejectedTooSmall

	// RejectedUnaligned means the size is not a multiple of the sector size.
	RejectedUnaligned
)

// String returns a human-readable representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case RejectedDirectory:
		return "directory"
	case RejectedNotRegular:
		return "not a regular file"
	case RejectedTooSmall:
		return "below minimum size"
	case RejectedUnaligned:
		return "not sector aligned"
	default:
		return "unknown"
	}
}

// Options holds the filter thresholds.
type Options struct {
	// MinSize is the smallest accepted size in bytes. Zero accepts any size.
	MinSize int64

	// RequireSectorAlignment rejects sizes that are not a multiple of SectorSize.
	RequireSectorAlignment bool

	// SectorSize is the alignment unit. Non-positive values disable the check.
	SectorSize int64
}

// DefaultOptions returns the thresholds used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MinSize:                DefaultMinSize,
		RequireSectorAlignment: true,
		SectorSize:             DefaultSectorSize,
	}
}

// Filter is a pure predicate over PathEntry metadata.
// It holds no mutable state and is safe for concurrent use.
type Filter struct {
	opts Options
}

// New creates a Filter with the given options.
func New(opts Options) *Filter {
	return &Filter{opts: opts}
}

// Options returns the thresholds the filter was created with.
func (f *Filter) Options() Options {
	return f.opts
}

// Check returns the verdict for e. Checks run in a fixed order, so an entry
// failing several of them always gets the same verdict.
func (f *Filter) Check(e model.PathEntry) Verdict {
	if e.IsDir() {
		return RejectedDirectory
	}
	if !e.IsRegular() {
		return RejectedNotRegular
	}
	if f.opts.RequireSectorAlignment && f.opts.SectorSize > 0 && e.Size%f.opts.SectorSize != 0 {
		return RejectedUnaligned
	}
	if e.Size < f.opts.MinSize {
		return RejectedTooSmall
	}
	return Accepted
}

// Accept reports whether e should be evaluated.
func (f *Filter) Accept(e model.PathEntry) bool {
	return f.Check(e) == Accepted
}

package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ScanOptions records the tunables a scan ran with.
// It is embedded in ScanReport so stored scans can be interpreted later.
type ScanOptions struct {
	// MinFileSize is the smallest file size, in bytes, that was evaluated.
	MinFileSize int64 `json:"min_file_size"`

	// RequireSectorAlignment reports whether sizes had to be multiples of SectorSize.
	RequireSectorAlignment bool `json:"require_sector_alignment"`

	// SectorSize is the alignment unit used by the filter.
	SectorSize int64 `json:"sector_size"`

	// EntropyThreshold is the score a file had to exceed to be reported.
	EntropyThreshold float32 `json:"entropy_threshold"`

	// SampleWindow is the per-sample read size in bytes.
	SampleWindow int64 `json:"sample_window"`

	// Workers is the evaluator pool size.
	Workers int `json:"workers"`

	// QueueCapacity is the bounded work queue capacity.
	QueueCapacity int `json:"queue_capacity"`

	// FollowSymlinks reports whether symbolic links were followed.
	FollowSymlinks bool `json:"follow_symlinks"`

	// OneFileSystem reports whether traversal stayed on the root's device.
	OneFileSystem bool `json:"one_file_system"`
}

// ScanSummary counts how many entries and jobs reached each state.
//
// Once a scan finishes normally, Queued == Completed + Failed holds; after a
// cancellation, Queued == Completed + Failed + Cancelled.
type ScanSummary struct {
	// === Traversal ===

	// Discovered is the number of entries the walker produced (files and directories).
	Discovered int64 `json:"discovered"`

	// Rejected is the number of entries the filter turned down.
	Rejected int64 `json:"rejected"`

	// WalkErrors is the number of entries skipped because they could not be read.
	WalkErrors int64 `json:"walk_errors"`

	// === Jobs ===

	// Queued is the number of jobs pushed onto the work queue.
	Queued int64 `json:"queued"`

	// Completed is the number of jobs evaluated successfully.
	Completed int64 `json:"completed"`

	// Failed is the number of jobs whose evaluation returned an error.
	Failed int64 `json:"failed"`

	// Cancelled is the number of queued jobs abandoned because of cancellation.
	Cancelled int64 `json:"cancelled"`

	// === Results ===

	// Findings is the number of findings streamed to the sink.
	Findings int64 `json:"findings"`

	// Suppressed is the number of candidates hidden by the known-format policy.
	Suppressed int64 `json:"suppressed"`

	// BytesSampled is the total number of bytes fed into entropy histograms.
	BytesSampled int64 `json:"bytes_sampled"`
}

// Terminal returns the number of jobs that reached a terminal state.
func (s ScanSummary) Terminal() int64 {
	return s.Completed + s.Failed + s.Cancelled
}

// ScanReport is the complete result of one scan.
type ScanReport struct {
	// ID uniquely identifies the scan run.
	ID string `json:"id"`

	// Root is the directory that was scanned.
	Root string `json:"root"`

	// StartedAt is when the scan began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the scan ended (successfully or not).
	FinishedAt time.Time `json:"finished_at"`

	// Options are the tunables the scan ran with.
	Options ScanOptions `json:"options"`

	// Summary holds the final counters.
	Summary ScanSummary `json:"summary"`

	// Findings are the reported candidates, sorted by descending score.
	Findings []Finding `json:"findings,omitempty"`

	// Interrupted is true if the scan was cancelled before it finished.
	Interrupted bool `json:"interrupted"`

	// Error contains the fatal error message, if the scan aborted.
	Error string `json:"error,omitempty"`
}

// NewScanReport creates a report for root with a fresh ID and start time.
func NewScanReport(root string, opts ScanOptions) *ScanReport {
	return &ScanReport{
		ID:        uuid.NewString(),
		Root:      root,
		StartedAt: time.Now(),
		Options:   opts,
	}
}

// Finish records the end of the scan, its summary and its findings.
// Findings are sorted by descending score, ties broken by path.
func (r *ScanReport) Finish(summary ScanSummary, findings []Finding, err error) {
	r.FinishedAt = time.Now()
	r.Summary = summary
	r.Findings = append([]Finding(nil), findings...)
	sort.Slice(r.Findings, func(i, j int) bool {
		if r.Findings[i].Score != r.Findings[j].Score {
			return r.Findings[i].Score > r.Findings[j].Score
		}
		return r.Findings[i].Path < r.Findings[j].Path
	})
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns how long the scan took. It is zero for unfinished scans.
func (r *ScanReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// HasFindings reports whether the scan produced at least one finding.
func (r *ScanReport) HasFindings() bool {
	return len(r.Findings) > 0
}

package model

// JobState is the lifecycle state of a single ScanJob.
//
// A job moves Discovered -> Queued -> InProgress and ends in exactly one of
// the terminal states Completed or Failed. Jobs still queued when a scan is
// cancelled end as Cancelled.
type JobState int

const (
	// JobDiscovered means the walker produced the entry and the filter accepted it.
	JobDiscovered JobState = iota

	// JobQueued means the job sits in the bounded work queue.
	JobQueued

	// JobInProgress means a worker has claimed the job and is evaluating it.
	JobInProgress

	// JobCompleted means evaluation finished, with or without a finding.
	JobCompleted

	// JobFailed means the file could not be opened, read or re-checked.
	// A failed job never produces a finding and never stops the scan.
	JobFailed

	// JobCancelled means the scan was cancelled before the job was evaluated.
	JobCancelled
)

// String returns a human-readable representation of the job state.
func (s JobState) String() string {
	switch s {
	case JobDiscovered:
		return "discovered"
	case JobQueued:
		return "queued"
	case JobInProgress:
		return "in-progress"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen from s.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ScanJob is one unit of work: a PathEntry accepted by the filter.
// The coordinator's queue owns a job until a worker receives it; the worker
// then owns it until evaluation ends.
type ScanJob struct {
	// Entry is the accepted filesystem entry.
	Entry PathEntry

	// Seq is the 1-based order in which the job was queued.
	// It is only used for logging; workers complete jobs in any order.
	Seq uint64
}

// ScanState is the global state of a running scan.
type ScanState int32

const (
	// ScanIdle means Run has not been called yet.
	ScanIdle ScanState = iota

	// ScanScanning means the walker is still producing entries.
	ScanScanning

	// ScanDraining means traversal finished and workers are emptying the queue.
	ScanDraining

	// ScanDone means every queued job reached a terminal state.
	ScanDone
)

// String returns a human-readable representation of the scan state.
func (s ScanState) String() string {
	switch s {
	case ScanIdle:
		return "idle"
	case ScanScanning:
		return "scanning"
	case ScanDraining:
		return "draining"
	case ScanDone:
		return "done"
	default:
		return "unknown"
	}
}

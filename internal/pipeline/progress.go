package pipeline

import (
	"time"

	"github.com/nao1215/tchunt/internal/model"
)

// Progress is a point-in-time snapshot of a running scan.
// Counters are read one by one, so a snapshot taken mid-scan may be off by
// the jobs that moved between reads.
type Progress struct {
	State      model.ScanState
	Discovered int64
	Rejected   int64
	Queued     int64
	InProgress int64
	Completed  int64
	Failed     int64
	Cancelled  int64
	Findings   int64
	Suppressed int64
	Elapsed    time.Duration
}

// Pending returns the number of queued jobs not yet claimed by a worker.
func (p Progress) Pending() int64 {
	return max(p.Queued-p.InProgress-p.Completed-p.Failed-p.Cancelled, 0)
}

// Progress returns a snapshot of the current scan.
func (c *Coordinator) Progress() Progress {
	p := Progress{
		State:      c.State(),
		Discovered: c.counters.discovered.Load(),
		Rejected:   c.counters.rejected.Load(),
		Queued:     c.counters.queued.Load(),
		InProgress: c.counters.inProgress.Load(),
		Completed:  c.counters.completed.Load(),
		Failed:     c.counters.failed.Load(),
		Cancelled:  c.counters.cancelled.Load(),
		Findings:   c.counters.findings.Load(),
		Suppressed: c.counters.suppressed.Load(),
	}
	if started := c.started.Load(); started != 0 {
		p.Elapsed = time.Since(time.Unix(0, started))
	}
	return p
}

// startProgress logs a snapshot every progressInterval until the returned
// function is called.
func (c *Coordinator) startProgress(start time.Time) func() {
	if c.progressInterval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(c.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := c.Progress()
				c.logger.Info("scan progress",
					"state", p.State.String(),
					"discovered", p.Discovered,
					"queued", p.Queued,
					"in_progress", p.InProgress,
					"completed", p.Completed,
					"failed", p.Failed,
					"findings", p.Findings,
					"elapsed", time.Since(start).Round(time.Second),
				)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

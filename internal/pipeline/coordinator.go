package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/tchunt/internal/evaluator"
	"github.com/nao1215/tchunt/internal/filter"
	"github.com/nao1215/tchunt/internal/model"
	"github.com/nao1215/tchunt/internal/report"
	"github.com/nao1215/tchunt/internal/walker"
)

// ErrAlreadyRunning is returned when Run is called on a coordinator that is
// still scanning.
var ErrAlreadyRunning = errors.New("scan already running")

// Walker enumerates the entries below a root.
type Walker interface {
	Walk(ctx context.Context, root string, fn walker.EntryFunc) (walker.Stats, error)
}

// Filter decides which entries are evaluated.
type Filter interface {
	Check(e model.PathEntry) filter.Verdict
}

// Evaluator evaluates one accepted entry.
type Evaluator interface {
	EvaluateEntry(ctx context.Context, e model.PathEntry) (evaluator.Outcome, error)
}

// Coordinator owns the work queue and the worker pool of a scan.
type Coordinator struct {
	walker    Walker
	filter    Filter
	evaluator Evaluator

	workers          int
	queueCapacity    int
	progressInterval time.Duration
	logger           *slog.Logger

	state    atomic.Int32
	started  atomic.Int64
	counters counters

	// sinkMu serializes Emit calls so sinks need no locking of their own.
	sinkMu sync.Mutex
}

// counters are updated by the producer and the workers.
type counters struct {
	discovered   atomic.Int64
	rejected     atomic.Int64
	queued       atomic.Int64
	inProgress   atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
	cancelled    atomic.Int64
	findings     atomic.Int64
	suppressed   atomic.Int64
	bytesSampled atomic.Int64
}

func (c *counters) reset() {
	for _, v := range []*atomic.Int64{
		&c.discovered, &c.rejected, &c.queued, &c.inProgress, &c.completed,
		&c.failed, &c.cancelled, &c.findings, &c.suppressed, &c.bytesSampled,
	} {
		v.Store(0)
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWorkers sets the number of evaluator workers.
// Default is runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueCapacity sets the work queue capacity.
// Default is four times the number of workers.
func WithQueueCapacity(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.queueCapacity = n
		}
	}
}

// WithProgressInterval enables periodic progress logging at Info level.
// Zero disables it.
func WithProgressInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.progressInterval = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New creates a Coordinator from its collaborators.
func New(w Walker, f Filter, e Evaluator, opts ...Option) *Coordinator {
	c := &Coordinator{
		walker:    w,
		filter:    f,
		evaluator: e,
		workers:   runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.queueCapacity <= 0 {
		c.queueCapacity = 4 * c.workers
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Workers returns the worker pool size.
func (c *Coordinator) Workers() int {
	return c.workers
}

// QueueCapacity returns the work queue capacity.
func (c *Coordinator) QueueCapacity() int {
	return c.queueCapacity
}

// State returns the current scan state.
func (c *Coordinator) State() model.ScanState {
	return model.ScanState(c.state.Load())
}

// Run scans root and streams every unsuppressed finding to sink.
//
// Run blocks until traversal has ended and every queued job is completed,
// failed or cancelled. The returned summary is never nil, even when an
// error is returned. Cancelling ctx stops traversal, abandons queued jobs
// and returns the context error.
func (c *Coordinator) Run(ctx context.Context, root string, sink report.Sink) (*model.ScanSummary, error) {
	if !c.begin() {
		return &model.ScanSummary{}, ErrAlreadyRunning
	}
	start := time.Now()

	c.logger.Info("starting scan",
		"root", root,
		"workers", c.workers,
		"queue_capacity", c.queueCapacity,
	)

	stopProgress := c.startProgress(start)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan model.ScanJob, c.queueCapacity)

	var walkStats walker.Stats
	g.Go(func() error {
		defer close(jobs)

		stats, err := c.walker.Walk(gctx, root, func(e model.PathEntry) error {
			return c.enqueue(gctx, jobs, e)
		})
		walkStats = stats
		if err != nil {
			return err
		}
		c.state.Store(int32(model.ScanDraining))
		c.logger.Debug("traversal finished, draining queue", "queued", c.counters.queued.Load())
		return nil
	})

	for range c.workers {
		g.Go(func() error {
			for job := range jobs {
				if err := c.process(gctx, job, sink); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()

	// Workers that stopped on a sink error may leave jobs behind.
	for range jobs {
		c.counters.cancelled.Add(1)
	}

	stopProgress()
	c.state.Store(int32(model.ScanDone))

	if err == nil {
		err = ctx.Err()
	}

	summary := c.summary(walkStats)
	c.logger.Info("scan finished",
		"root", root,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"checked", summary.Completed,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
		"findings", summary.Findings,
		"suppressed", summary.Suppressed,
	)
	return summary, err
}

// begin moves the coordinator into the scanning state and resets counters.
func (c *Coordinator) begin() bool {
	for _, from := range []model.ScanState{model.ScanIdle, model.ScanDone} {
		if c.state.CompareAndSwap(int32(from), int32(model.ScanScanning)) {
			c.counters.reset()
			c.started.Store(time.Now().UnixNano())
			return true
		}
	}
	return false
}

// enqueue filters one walked entry and pushes accepted ones onto the queue.
// It blocks while the queue is full.
func (c *Coordinator) enqueue(ctx context.Context, jobs chan<- model.ScanJob, e model.PathEntry) error {
	c.counters.discovered.Add(1)

	if v := c.filter.Check(e); v != filter.Accepted {
		c.counters.rejected.Add(1)
		if v != filter.RejectedDirectory {
			c.logger.Debug("rejected by filter", "path", e.Path, "reason", v.String())
		}
		return nil
	}

	seq := c.counters.queued.Add(1)
	job := model.ScanJob{Entry: e, Seq: uint64(seq)} //nolint:gosec // counter is positive
	select {
	case jobs <- job:
		return nil
	case <-ctx.Done():
		c.counters.queued.Add(-1)
		return ctx.Err()
	}
}

// process drives one job to a terminal state. It only returns an error
// when the sink fails.
func (c *Coordinator) process(ctx context.Context, job model.ScanJob, sink report.Sink) error {
	if ctx.Err() != nil {
		c.counters.cancelled.Add(1)
		return nil
	}

	c.counters.inProgress.Add(1)
	out, err := c.evaluator.EvaluateEntry(ctx, job.Entry)
	c.counters.inProgress.Add(-1)

	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			c.counters.cancelled.Add(1)
			return nil
		}
		c.counters.failed.Add(1)
		c.logger.Debug("failed to evaluate file",
			"path", job.Entry.Path,
			"seq", job.Seq,
			"error", err,
		)
		return nil
	}

	c.counters.bytesSampled.Add(out.SampledBytes)

	if f := out.Finding; f != nil {
		if f.Suppressed {
			c.counters.suppressed.Add(1)
			c.logger.Info("possible known file type, not reporting",
				"path", f.Path,
				"type", f.TypeName(),
				"score", model.FormatScore(f.Score),
			)
		} else {
			c.sinkMu.Lock()
			err := sink.Emit(*f)
			c.sinkMu.Unlock()
			if err != nil {
				c.counters.failed.Add(1)
				return fmt.Errorf("failed to emit finding for %s: %w", f.Path, err)
			}
			c.counters.findings.Add(1)
		}
	}

	c.counters.completed.Add(1)
	return nil
}

func (c *Coordinator) summary(ws walker.Stats) *model.ScanSummary {
	return &model.ScanSummary{
		Discovered:   c.counters.discovered.Load(),
		Rejected:     c.counters.rejected.Load(),
		WalkErrors:   ws.Errors,
		Queued:       c.counters.queued.Load(),
		Completed:    c.counters.completed.Load(),
		Failed:       c.counters.failed.Load(),
		Cancelled:    c.counters.cancelled.Load(),
		Findings:     c.counters.findings.Load(),
		Suppressed:   c.counters.suppressed.Load(),
		BytesSampled: c.counters.bytesSampled.Load(),
	}
}

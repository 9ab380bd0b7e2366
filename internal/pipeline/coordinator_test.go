package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/tchunt/internal/entropy"
	"github.com/nao1215/tchunt/internal/evaluator"
	"github.com/nao1215/tchunt/internal/filter"
	"github.com/nao1215/tchunt/internal/model"
	"github.com/nao1215/tchunt/internal/report"
	"github.com/nao1215/tchunt/internal/walker"
)

// sliceWalker emits a fixed list of entries.
type sliceWalker struct {
	entries []model.PathEntry
	err     error
}

func (w *sliceWalker) Walk(ctx context.Context, _ string, fn walker.EntryFunc) (walker.Stats, error) {
	var stats walker.Stats
	if w.err != nil {
		return stats, w.err
	}
	for _, e := range w.entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Entries++
		if err := fn(e); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// evalFunc adapts a function to the Evaluator interface.
type evalFunc func(ctx context.Context, e model.PathEntry) (evaluator.Outcome, error)

func (f evalFunc) EvaluateEntry(ctx context.Context, e model.PathEntry) (evaluator.Outcome, error) {
	return f(ctx, e)
}

func files(n int) []model.PathEntry {
	entries := make([]model.PathEntry, n)
	for i := range entries {
		entries[i] = model.PathEntry{Path: fmt.Sprintf("/data/f%03d", i), Size: 512, Mode: 0o644}
	}
	return entries
}

func acceptAll() *filter.Filter {
	return filter.New(filter.Options{})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func assertAccounted(t *testing.T, s *model.ScanSummary) {
	t.Helper()
	if s.Queued != s.Terminal() {
		t.Errorf("queued %d != completed %d + failed %d + cancelled %d",
			s.Queued, s.Completed, s.Failed, s.Cancelled)
	}
}

// TestNew tests the Coordinator defaults.
func TestNew(t *testing.T) {
	t.Parallel()

	c := New(&sliceWalker{}, acceptAll(), evalFunc(nil), WithWorkers(3))
	if c.Workers() != 3 {
		t.Errorf("got %d workers, expected 3", c.Workers())
	}
	if c.QueueCapacity() != 12 {
		t.Errorf("got capacity %d, expected 12", c.QueueCapacity())
	}
	if c.State() != model.ScanIdle {
		t.Errorf("got state %s, expected idle", c.State())
	}

	c = New(&sliceWalker{}, acceptAll(), evalFunc(nil), WithWorkers(0), WithQueueCapacity(7))
	if c.Workers() < 1 {
		t.Error("expected at least one worker")
	}
	if c.QueueCapacity() != 7 {
		t.Errorf("got capacity %d, expected 7", c.QueueCapacity())
	}
}

// TestRunCompletesEveryJob tests that every queued job ends before Run returns.
func TestRunCompletesEveryJob(t *testing.T) {
	t.Parallel()

	var evaluated atomic.Int64
	ev := evalFunc(func(_ context.Context, e model.PathEntry) (evaluator.Outcome, error) {
		evaluated.Add(1)
		out := evaluator.Outcome{Score: 1, SampledBytes: e.Size}
		if strings.HasSuffix(e.Path, "0") {
			out.Score = 7.99
			out.Finding = &model.Finding{Path: e.Path, Score: 7.99}
		}
		return out, nil
	})

	entries := append(files(100), model.PathEntry{Path: "/data/dir", Mode: os.ModeDir | 0o755})
	sink := report.NewCollector()
	c := New(&sliceWalker{entries: entries}, acceptAll(), ev,
		WithWorkers(4), WithQueueCapacity(2), WithLogger(quietLogger()))

	summary, err := c.Run(context.Background(), "/data", sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Discovered != 101 || summary.Rejected != 1 {
		t.Errorf("got discovered %d rejected %d, expected 101 and 1", summary.Discovered, summary.Rejected)
	}
	if summary.Queued != 100 || summary.Completed != 100 {
		t.Errorf("got queued %d completed %d, expected 100 each", summary.Queued, summary.Completed)
	}
	if evaluated.Load() != 100 {
		t.Errorf("evaluator ran %d times, expected 100", evaluated.Load())
	}
	if summary.Findings != 10 || sink.Len() != 10 {
		t.Errorf("got %d findings (%d in sink), expected 10", summary.Findings, sink.Len())
	}
	if summary.BytesSampled != 100*512 {
		t.Errorf("got %d bytes sampled", summary.BytesSampled)
	}
	if c.State() != model.ScanDone {
		t.Errorf("got state %s, expected done", c.State())
	}
	assertAccounted(t, summary)
}

// TestRunEmptyTree tests a scan with nothing to do.
func TestRunEmptyTree(t *testing.T) {
	t.Parallel()

	c := New(&sliceWalker{}, acceptAll(), evalFunc(nil), WithLogger(quietLogger()))
	summary, err := c.Run(context.Background(), "/empty", report.NewCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *summary != (model.ScanSummary{}) {
		t.Errorf("expected empty summary, got %+v", summary)
	}
}

// TestRunIsolatesFailures tests that one failing file does not affect others.
func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	ev := evalFunc(func(_ context.Context, e model.PathEntry) (evaluator.Outcome, error) {
		if strings.HasSuffix(e.Path, "3") {
			return evaluator.Outcome{}, fmt.Errorf("open %s: %w", e.Path, os.ErrPermission)
		}
		return evaluator.Outcome{Finding: &model.Finding{Path: e.Path, Score: 8}}, nil
	})

	sink := report.NewCollector()
	c := New(&sliceWalker{entries: files(30)}, acceptAll(), ev, WithWorkers(3), WithLogger(quietLogger()))
	summary, err := c.Run(context.Background(), "/data", sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 3 {
		t.Errorf("got %d failed, expected 3", summary.Failed)
	}
	if summary.Completed != 27 || sink.Len() != 27 {
		t.Errorf("got %d completed and %d findings, expected 27", summary.Completed, sink.Len())
	}
	assertAccounted(t, summary)
}

// TestRunBoundsConcurrency tests that no more than the configured number
// of evaluations run at once.
func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 3
	var active, peak atomic.Int64
	ev := evalFunc(func(context.Context, model.PathEntry) (evaluator.Outcome, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return evaluator.Outcome{}, nil
	})

	c := New(&sliceWalker{entries: files(40)}, acceptAll(), ev, WithWorkers(workers), WithLogger(quietLogger()))
	summary, err := c.Run(context.Background(), "/data", report.NewCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > workers {
		t.Errorf("peak concurrency %d exceeds %d workers", peak.Load(), workers)
	}
	if summary.Completed != 40 {
		t.Errorf("got %d completed, expected 40", summary.Completed)
	}
}

// TestRunBoundsQueue tests that the producer blocks when the queue is full.
func TestRunBoundsQueue(t *testing.T) {
	t.Parallel()

	const (
		workers  = 2
		capacity = 3
	)
	gate := make(chan struct{})
	ev := evalFunc(func(context.Context, model.PathEntry) (evaluator.Outcome, error) {
		<-gate
		return evaluator.Outcome{}, nil
	})

	c := New(&sliceWalker{entries: files(20)}, acceptAll(), ev,
		WithWorkers(workers), WithQueueCapacity(capacity), WithLogger(quietLogger()))

	type result struct {
		summary *model.ScanSummary
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := c.Run(context.Background(), "/data", report.NewCollector())
		done <- result{s, err}
	}()

	// Two jobs held by workers, three in the queue, one blocked on send.
	const limit = workers + capacity + 1
	waitFor(t, "queue to fill", func() bool {
		p := c.Progress()
		return p.InProgress == workers && p.Discovered == limit
	})
	time.Sleep(20 * time.Millisecond)
	if p := c.Progress(); p.Discovered != limit || p.State != model.ScanScanning {
		t.Errorf("producer ran ahead of a full queue: %+v", p)
	}

	if _, err := c.Run(context.Background(), "/data", report.NewCollector()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	close(gate)
	r := <-done
	if r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}
	if r.summary.Completed != 20 {
		t.Errorf("got %d completed, expected 20", r.summary.Completed)
	}
}

// TestRunCancellation tests that cancelling stops the scan cleanly.
func TestRunCancellation(t *testing.T) {
	t.Parallel()

	ev := evalFunc(func(ctx context.Context, _ model.PathEntry) (evaluator.Outcome, error) {
		<-ctx.Done()
		return evaluator.Outcome{}, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(&sliceWalker{entries: files(50)}, acceptAll(), ev,
		WithWorkers(2), WithQueueCapacity(4), WithLogger(quietLogger()))

	var (
		summary *model.ScanSummary
		err     error
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		summary, err = c.Run(ctx, "/data", report.NewCollector())
	}()

	waitFor(t, "workers to start", func() bool { return c.Progress().InProgress == 2 })
	cancel()
	wg.Wait()

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if summary.Cancelled == 0 {
		t.Error("expected cancelled jobs")
	}
	if summary.Queued >= 50 {
		t.Errorf("expected traversal to stop early, queued %d", summary.Queued)
	}
	if c.State() != model.ScanDone {
		t.Errorf("got state %s, expected done", c.State())
	}
	assertAccounted(t, summary)
}

// TestRunWalkerError tests that a fatal traversal error aborts the scan.
func TestRunWalkerError(t *testing.T) {
	t.Parallel()

	w := &sliceWalker{err: fmt.Errorf("%w: /missing", walker.ErrRootNotFound)}
	c := New(w, acceptAll(), evalFunc(nil), WithLogger(quietLogger()))
	summary, err := c.Run(context.Background(), "/missing", report.NewCollector())
	if !errors.Is(err, walker.ErrRootNotFound) {
		t.Errorf("expected ErrRootNotFound, got %v", err)
	}
	if summary == nil {
		t.Fatal("expected a summary even on error")
	}
	if summary.Queued != 0 {
		t.Errorf("expected no jobs, got %d", summary.Queued)
	}
}

// TestRunSinkError tests that a failing sink aborts the scan.
func TestRunSinkError(t *testing.T) {
	t.Parallel()

	errClosed := errors.New("stdout closed")
	ev := evalFunc(func(_ context.Context, e model.PathEntry) (evaluator.Outcome, error) {
		return evaluator.Outcome{Finding: &model.Finding{Path: e.Path, Score: 8}}, nil
	})
	sink := report.SinkFunc(func(model.Finding) error { return errClosed })

	c := New(&sliceWalker{entries: files(100)}, acceptAll(), ev,
		WithWorkers(2), WithQueueCapacity(2), WithLogger(quietLogger()))
	summary, err := c.Run(context.Background(), "/data", sink)
	if !errors.Is(err, errClosed) {
		t.Errorf("expected sink error, got %v", err)
	}
	if summary.Findings != 0 {
		t.Errorf("expected no delivered findings, got %d", summary.Findings)
	}
	assertAccounted(t, summary)
}

// TestRunSuppressesKnownTypes tests that suppressed findings are counted
// but not emitted.
func TestRunSuppressesKnownTypes(t *testing.T) {
	t.Parallel()

	ev := evalFunc(func(_ context.Context, e model.PathEntry) (evaluator.Outcome, error) {
		f := &model.Finding{Path: e.Path, Score: 7.95}
		if strings.HasSuffix(e.Path, "1") {
			f.Type = &model.TypeTag{MIME: "application/zip"}
			f.Suppressed = true
		}
		return evaluator.Outcome{Finding: f}, nil
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sink := report.NewCollector()
	c := New(&sliceWalker{entries: files(10)}, acceptAll(), ev, WithLogger(logger))
	summary, err := c.Run(context.Background(), "/data", sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Suppressed != 1 || summary.Findings != 9 || sink.Len() != 9 {
		t.Errorf("got suppressed %d findings %d sink %d", summary.Suppressed, summary.Findings, sink.Len())
	}
	if !strings.Contains(logs.String(), "application/zip") {
		t.Error("expected the suppressed type to be logged")
	}
}

// TestRunLogsProgress tests periodic progress logging.
func TestRunLogsProgress(t *testing.T) {
	t.Parallel()

	ev := evalFunc(func(context.Context, model.PathEntry) (evaluator.Outcome, error) {
		time.Sleep(5 * time.Millisecond)
		return evaluator.Outcome{}, nil
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	c := New(&sliceWalker{entries: files(20)}, acceptAll(), ev,
		WithWorkers(1), WithProgressInterval(time.Millisecond), WithLogger(logger))
	if _, err := c.Run(context.Background(), "/data", report.NewCollector()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(logs.String(), "scan progress") {
		t.Error("expected progress log lines")
	}
	if !strings.Contains(logs.String(), "scan finished") {
		t.Error("expected final summary log line")
	}
}

// TestProgressPending tests the pending job computation.
func TestProgressPending(t *testing.T) {
	t.Parallel()

	p := Progress{Queued: 10, InProgress: 2, Completed: 5, Failed: 1}
	if p.Pending() != 2 {
		t.Errorf("got %d pending, expected 2", p.Pending())
	}
	if (Progress{Queued: 1, Completed: 2}).Pending() != 0 {
		t.Error("expected pending to never be negative")
	}
}

// TestRunEndToEnd scans a real directory with the real components: a
// low-entropy file that passes the filter, a random file that is reported,
// and a small file that is filtered out.
func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rng := rand.New(rand.NewPCG(21, 42)) //nolint:gosec // deterministic test data
	random := make([]byte, 2<<20)
	for i := range random {
		random[i] = byte(rng.IntN(256))
	}
	for name, data := range map[string][]byte{
		"a": make([]byte, 4096),
		"b": random,
		"c": make([]byte, 300),
	} {
		if err := os.WriteFile(filepath.Join(root, name), data, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	f := filter.New(filter.Options{MinSize: 1024, RequireSectorAlignment: true, SectorSize: 512})
	ev := evaluator.New(
		evaluator.WithEstimator(entropy.New()),
		evaluator.WithThreshold(evaluator.DefaultThreshold),
		evaluator.WithLogger(quietLogger()),
	)
	w := walker.New(walker.Options{Logger: quietLogger()})

	var out bytes.Buffer
	c := New(w, f, ev, WithWorkers(2), WithLogger(quietLogger()))
	summary, err := c.Run(context.Background(), root, report.NewLineWriter(&out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Discovered != 3 || summary.Rejected != 1 {
		t.Errorf("got discovered %d rejected %d, expected 3 and 1", summary.Discovered, summary.Rejected)
	}
	if summary.Queued != 2 || summary.Completed != 2 {
		t.Errorf("got queued %d completed %d, expected 2 each", summary.Queued, summary.Completed)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one finding, got %q", out.String())
	}
	fields := strings.SplitN(lines[0], " ", 2)
	if len(fields) != 2 || fields[1] != filepath.Join(root, "b") {
		t.Errorf("unexpected finding line %q", lines[0])
	}
	if fields[0] <= "7.9" {
		t.Errorf("expected score above 7.9, got %s", fields[0])
	}
}

package evaluator

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/tchunt/internal/entropy"
	"github.com/nao1215/tchunt/internal/model"
	"github.com/nao1215/tchunt/internal/sniff"
)

// DefaultThreshold is the score a file must exceed to be reported.
// Compressed archives and media usually stay below it.
const DefaultThreshold float32 = 7.9

var (
	// ErrNotRegular is returned when the path no longer names a regular file.
	ErrNotRegular = errors.New("not a regular file")

	// ErrChanged is returned when the file was replaced while being opened,
	// or its size differs from the size seen during traversal.
	ErrChanged = errors.New("file changed since it was discovered")
)

// Outcome is the result of one successful evaluation.
type Outcome struct {
	// Finding is set when the score exceeded the threshold.
	Finding *model.Finding

	// Score is the measured entropy.
	Score float32

	// SampledBytes is the number of bytes fed into the histogram.
	SampledBytes int64
}

// Evaluator evaluates candidate files. It is stateless apart from its
// configuration and is safe for concurrent use by many workers.
type Evaluator struct {
	threshold   float32
	estimator   *entropy.Estimator
	identifier  sniff.Identifier
	policy      sniff.Policy
	fingerprint bool
	follow      bool
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithThreshold sets the detection threshold.
func WithThreshold(threshold float32) Option {
	return func(e *Evaluator) {
		e.threshold = threshold
	}
}

// WithEstimator sets the entropy estimator.
func WithEstimator(est *entropy.Estimator) Option {
	return func(e *Evaluator) {
		if est != nil {
			e.estimator = est
		}
	}
}

// WithIdentifier enables type sniffing for above-threshold files.
// A nil identifier disables sniffing.
func WithIdentifier(id sniff.Identifier) Option {
	return func(e *Evaluator) {
		e.identifier = id
	}
}

// WithPolicy sets the known-format suppression policy.
func WithPolicy(p sniff.Policy) Option {
	return func(e *Evaluator) {
		e.policy = p
	}
}

// WithFingerprint enables content fingerprints on findings.
func WithFingerprint(enabled bool) Option {
	return func(e *Evaluator) {
		e.fingerprint = enabled
	}
}

// WithFollowSymlinks makes the evaluator read through symbolic links.
// Without it a path that names a link is rejected with ErrNotRegular, which
// matches entries discovered by a walker that does not follow links.
func WithFollowSymlinks(follow bool) Option {
	return func(e *Evaluator) {
		e.follow = follow
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Evaluator. Without options it uses DefaultThreshold, the
// default estimator, no type sniffing and no fingerprints.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		threshold: DefaultThreshold,
		estimator: entropy.New(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the detection threshold.
func (e *Evaluator) Threshold() float32 {
	return e.threshold
}

// Evaluate evaluates the file at path and returns a Finding when its score
// exceeds the threshold, or nil otherwise.
func (e *Evaluator) Evaluate(ctx context.Context, path string) (*model.Finding, error) {
	out, err := e.evaluate(ctx, model.PathEntry{Path: path}, false)
	if err != nil {
		return nil, err
	}
	return out.Finding, nil
}

// EvaluateEntry evaluates an entry produced by the walker. In addition to
// Evaluate it fails with ErrChanged when the file size moved since discovery.
func (e *Evaluator) EvaluateEntry(ctx context.Context, entry model.PathEntry) (Outcome, error) {
	return e.evaluate(ctx, entry, true)
}

func (e *Evaluator) evaluate(ctx context.Context, entry model.PathEntry, checkSize bool) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	stat := os.Lstat
	if e.follow {
		stat = os.Stat
	}
	info, err := stat(entry.Path)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to stat %s: %w", entry.Path, err)
	}
	if !info.Mode().IsRegular() {
		return Outcome{}, fmt.Errorf("%s: %w", entry.Path, ErrNotRegular)
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to open %s: %w", entry.Path, err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = f.Close() //nolint:errcheck // read-only handle
		}
	}()

	// The path may have been replaced between the stat and the open.
	opened, err := f.Stat()
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to stat %s: %w", entry.Path, err)
	}
	if !os.SameFile(info, opened) {
		return Outcome{}, fmt.Errorf("%s: %w (replaced before open)", entry.Path, ErrChanged)
	}
	size := opened.Size()
	if checkSize && size != entry.Size {
		return Outcome{}, fmt.Errorf("%s: %w (size %d, was %d)", entry.Path, ErrChanged, size, entry.Size)
	}

	sample, err := e.estimator.Sample(f, size)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to estimate entropy of %s: %w", entry.Path, err)
	}
	out := Outcome{Score: sample.Score, SampledBytes: sample.N}
	if sample.Score <= e.threshold {
		return out, nil
	}

	finding := &model.Finding{
		Path:         entry.Path,
		Score:        sample.Score,
		Size:         size,
		SampledBytes: sample.N,
		DetectedAt:   e.now(),
	}
	if e.fingerprint {
		fp, err := fingerprint(f, size, sample.Window)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to fingerprint %s: %w", entry.Path, err)
		}
		finding.Fingerprint = fp
	}

	// Release the handle before sniffing opens the file again.
	closed = true
	if err := f.Close(); err != nil {
		return Outcome{}, fmt.Errorf("failed to close %s: %w", entry.Path, err)
	}

	if e.identifier != nil {
		e.annotate(finding)
	}
	out.Finding = finding
	return out, nil
}

// annotate runs the type sniffer and applies the suppression policy.
// A sniff failure leaves the finding unknown-typed.
func (e *Evaluator) annotate(finding *model.Finding) {
	tag, ok, err := e.identifier.Identify(finding.Path)
	if err != nil {
		e.logger.Warn("type lookup failed, reporting as unknown",
			slog.String("path", finding.Path),
			slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}
	finding.Type = &tag
	finding.Suppressed = e.policy.Suppresses(finding.Type)
}

// fingerprint hashes the file size and its first window bytes.
func fingerprint(r io.ReadSeeker, size, window int64) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha3.New256()
	var sz [8]byte
	binary.BigEndian.PutUint64(sz[:], uint64(size)) //nolint:gosec // size is non-negative
	_, _ = h.Write(sz[:])                           //nolint:errcheck // hash writes never fail
	if _, err := io.CopyN(h, r, min(window, size)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

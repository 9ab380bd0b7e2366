package entropy

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

// DefaultWindow is the default sample window in bytes. It is large enough
// for a stable histogram over 256 symbols and small enough to keep per-file
// cost low.
const DefaultWindow int64 = 171072

// MaxScore is the entropy of a uniform distribution over byte values.
const MaxScore float32 = 8.0

// ErrShortRead is returned when the source ends before a full sample window
// could be read. An estimate is computed from exactly the intended sample
// size or not at all.
var ErrShortRead = errors.New("short read while sampling")

// ErrInvalidLength is returned for negative source lengths.
var ErrInvalidLength = errors.New("invalid source length")

// Histogram counts occurrences of each byte value.
type Histogram [256]uint64

// Add counts every byte of p.
func (h *Histogram) Add(p []byte) {
	for _, b := range p {
		h[b]++
	}
}

// Total returns the number of bytes counted.
func (h *Histogram) Total() int64 {
	var n uint64
	for _, c := range h {
		n += c
	}
	return int64(n) //nolint:gosec // bounded by two sample windows
}

// Shannon returns the entropy of the histogram in bits per byte, treating
// n as the number of counted bytes. Empty buckets contribute nothing.
func (h *Histogram) Shannon(n int64) float32 {
	if n <= 0 {
		return 0
	}
	total := float64(n)
	var entropy float64
	for _, c := range h {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return float32(min(entropy, float64(MaxScore)))
}

// Sample is the detailed result of one estimate.
type Sample struct {
	// Score is the entropy estimate in bits per byte.
	Score float32

	// Window is the effective window: the configured window, or the source
	// length when the source is shorter.
	Window int64

	// N is the number of bytes counted: Window, or 2*Window when the tail
	// was sampled too.
	N int64

	// TailRead reports whether a second window was read from the end.
	TailRead bool
}

// Estimator computes entropy estimates with a fixed sample window.
// An Estimator is safe for concurrent use; every call uses its own buffer.
type Estimator struct {
	// window is the configured sample window in bytes.
	window int64

	// buffers recycles window-sized read buffers between calls.
	buffers sync.Pool
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithWindow sets the sample window. Non-positive values are ignored.
func WithWindow(n int64) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.window = n
		}
	}
}

// New creates an Estimator. The window defaults to DefaultWindow.
func New(opts ...Option) *Estimator {
	e := &Estimator{window: DefaultWindow}
	for _, opt := range opts {
		opt(e)
	}
	e.buffers.New = func() any {
		buf := make([]byte, e.window)
		return &buf
	}
	return e
}

// Window returns the configured sample window.
func (e *Estimator) Window() int64 {
	return e.window
}

// Estimate returns the entropy estimate of a source of the given length.
// It moves the read position of r; callers must not rely on it afterwards.
func (e *Estimator) Estimate(r io.ReadSeeker, length int64) (float32, error) {
	s, err := e.Sample(r, length)
	if err != nil {
		return 0, err
	}
	return s.Score, nil
}

// Sample reads the head window (and, for sources longer than twice the
// window, the tail window) of r and returns the resulting estimate.
// The head is always read before the tail.
func (e *Estimator) Sample(r io.ReadSeeker, length int64) (Sample, error) {
	if length < 0 {
		return Sample{}, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}

	window := min(e.window, length)
	s := Sample{Window: window}
	if window == 0 {
		return s, nil
	}

	bufp, ok := e.buffers.Get().(*[]byte)
	if !ok {
		b := make([]byte, e.window)
		bufp = &b
	}
	defer e.buffers.Put(bufp)
	buf := (*bufp)[:window]

	var hist Histogram

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Sample{}, fmt.Errorf("seek to head: %w", err)
	}
	if err := readWindow(r, buf); err != nil {
		return Sample{}, fmt.Errorf("read head sample: %w", err)
	}
	hist.Add(buf)
	s.N = window

	if length > 2*window {
		if _, err := r.Seek(length-window, io.SeekStart); err != nil {
			return Sample{}, fmt.Errorf("seek to tail: %w", err)
		}
		if err := readWindow(r, buf); err != nil {
			return Sample{}, fmt.Errorf("read tail sample: %w", err)
		}
		hist.Add(buf)
		s.N += window
		s.TailRead = true
	}

	s.Score = hist.Shannon(s.N)
	return s, nil
}

// readWindow fills buf completely or fails with ErrShortRead.
func readWindow(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, n, len(buf))
	}
	return err
}

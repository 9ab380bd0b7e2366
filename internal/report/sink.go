package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/nao1215/tchunt/internal/model"
)

// Sink receives findings as they are produced.
// Implementations in this package are safe for concurrent use.
type Sink interface {
	Emit(f model.Finding) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(f model.Finding) error

// Emit implements Sink.
func (fn SinkFunc) Emit(f model.Finding) error {
	return fn(f)
}

// LineWriter writes one "score path" line per finding.
type LineWriter struct {
	mu       sync.Mutex
	output   io.Writer
	showType bool
}

// LineWriterOption configures a LineWriter.
type LineWriterOption func(*LineWriter)

// WithTypeAnnotation appends the detected type to lines of typed findings.
func WithTypeAnnotation(show bool) LineWriterOption {
	return func(w *LineWriter) {
		w.showType = show
	}
}

// NewLineWriter creates a LineWriter that writes to output.
func NewLineWriter(output io.Writer, opts ...LineWriterOption) *LineWriter {
	w := &LineWriter{output: output}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Emit implements Sink.
func (w *LineWriter) Emit(f model.Finding) error {
	line := model.FormatScore(f.Score) + " " + model.DisplayPath(f.Path)
	if w.showType && f.Type != nil {
		line += " (" + f.Type.MIME + ")"
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.output, line+"\n"); err != nil {
		return fmt.Errorf("failed to write finding: %w", err)
	}
	return nil
}

// JSONLinesWriter writes one JSON object per finding.
type JSONLinesWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesWriter creates a JSONLinesWriter that writes to output.
func NewJSONLinesWriter(output io.Writer) *JSONLinesWriter {
	return &JSONLinesWriter{enc: json.NewEncoder(output)}
}

// Emit implements Sink.
func (w *JSONLinesWriter) Emit(f model.Finding) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode finding: %w", err)
	}
	return nil
}

// Collector keeps every finding in memory.
type Collector struct {
	mu       sync.Mutex
	findings []model.Finding
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Emit implements Sink.
func (c *Collector) Emit(f model.Finding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.findings = append(c.findings, f)
	return nil
}

// Findings returns a copy of the collected findings in arrival order.
func (c *Collector) Findings() []model.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Finding(nil), c.findings...)
}

// Len returns the number of collected findings.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.findings)
}

// MultiSink forwards each finding to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a Sink that emits to all provided sinks.
// Nil sinks are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Emit forwards f to every sink, even when one of them fails, and returns
// the joined errors.
func (m *MultiSink) Emit(f model.Finding) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

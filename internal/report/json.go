package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nao1215/tchunt/internal/model"
)

// JSONWriter renders a scan report as a single JSON document.
// Paths are written verbatim: characters such as '&' or '<' that are common
// in file names are not HTML-escaped.
type JSONWriter struct {
	baseWriter
	pretty bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents the document by two spaces per level.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.pretty = true
	}
}

// NewJSONWriter creates a JSONWriter. Output is compact unless
// WithPrettyPrint is given.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer. The document is encoded in full before anything
// reaches the output, so an encoding failure writes nothing.
func (w *JSONWriter) Write(report *model.ScanReport) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if w.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		return 0, fmt.Errorf("failed to encode report %s: %w", report.ID, err)
	}
	return w.output.Write(buf.Bytes())
}

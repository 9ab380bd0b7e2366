package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/tchunt/internal/model"
)

// createTestReport creates a finished report with sample data for testing.
func createTestReport() *model.ScanReport {
	report := model.NewScanReport("/evidence", model.ScanOptions{
		MinFileSize:            10 << 20,
		RequireSectorAlignment: true,
		SectorSize:             512,
		EntropyThreshold:       7.9,
		SampleWindow:           171072,
		Workers:                4,
		QueueCapacity:          16,
	})
	findings := []model.Finding{
		{Path: "/evidence/vault.hc", Score: 7.9991, Size: 20 << 20, SampledBytes: 342144, Fingerprint: "ab12"},
		{Path: "/evidence/other.bin", Score: 7.9995, Size: 10 << 20, SampledBytes: 342144},
	}
	report.Finish(model.ScanSummary{
		Discovered:   12345,
		Rejected:     12000,
		Queued:       345,
		Completed:    340,
		Failed:       5,
		Findings:     2,
		Suppressed:   1,
		BytesSampled: 345 * 342144,
	}, findings, nil)
	return report
}

// TestParseFormat tests report format parsing.
func TestParseFormat(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{"text", FormatText, false},
		{"TXT", FormatText, false},
		{"markdown", FormatMarkdown, false},
		{" md ", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"html", "", true},
		{"", "", true},
	}

	for _, tc := range testCases {
		got, err := ParseFormat(tc.input)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownFormat) {
				t.Errorf("ParseFormat(%q): expected ErrUnknownFormat, got %v", tc.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): unexpected error: %v", tc.input, err)
		}
		if got != tc.expected {
			t.Errorf("ParseFormat(%q): got %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

// TestNewWriter tests the writer factory.
func TestNewWriter(t *testing.T) {
	t.Parallel()

	for _, f := range []Format{FormatText, FormatMarkdown, FormatJSON} {
		var buf bytes.Buffer
		w, err := NewWriter(f, &buf)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", f, err)
		}
		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("%s: unexpected write error: %v", f, err)
		}
		if buf.Len() == 0 {
			t.Errorf("%s: expected output", f)
		}
	}

	if _, err := NewWriter(Format("pdf"), &bytes.Buffer{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"TCHUNT SCAN REPORT", "/evidence", "SUMMARY", "12,345", "Complete"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "SETTINGS") {
			t.Error("expected settings only in verbose mode")
		}
	})

	t.Run("lists findings by score", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		first := strings.Index(output, "/evidence/other.bin")
		second := strings.Index(output, "/evidence/vault.hc")
		if first < 0 || second < 0 || first > second {
			t.Error("expected findings sorted by descending score")
		}
		if !strings.Contains(output, "type: unknown") {
			t.Error("expected unknown type annotation")
		}
	})

	t.Run("verbose adds settings", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "SETTINGS") || !strings.Contains(buf.String(), "7.9000") {
			t.Error("expected settings section with threshold")
		}
	})

	t.Run("empty report", func(t *testing.T) {
		t.Parallel()

		report := model.NewScanReport("/empty", model.ScanOptions{})
		report.Finish(model.ScanSummary{}, nil, nil)

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No high-entropy files found") {
			t.Error("expected empty findings message")
		}
	})

	t.Run("interrupted report", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Interrupted = true
		report.Error = "context canceled"

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Interrupted") {
			t.Error("expected interrupted status")
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and alert", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero length")
		}

		output := buf.String()
		for _, want := range []string{
			"# tchunt Scan Report",
			"## Summary",
			"## Findings",
			"mermaid",
			"[!CAUTION]",
			"`/evidence/vault.hc`",
			"ab12",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("clean scan gets a tip", func(t *testing.T) {
		t.Parallel()

		report := model.NewScanReport("/clean", model.ScanOptions{})
		report.Finish(model.ScanSummary{Queued: 3, Completed: 3}, nil, nil)

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!TIP]") {
			t.Error("expected tip alert")
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		report := createTestReport()
		if _, err := NewJSONWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded model.ScanReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.ID != report.ID || len(decoded.Findings) != 2 {
			t.Errorf("unexpected decoded report %+v", decoded)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected a single line of compact JSON")
		}
	})

	t.Run("pretty output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"id\"") {
			t.Error("expected indented output")
		}
	})

	t.Run("paths are not HTML-escaped", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Findings[0].Path = "/evidence/tom & jerry <old>.img"

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"/evidence/tom & jerry <old>.img"`) {
			t.Errorf("expected path written verbatim, got %s", buf.String())
		}
	})

	t.Run("output error", func(t *testing.T) {
		t.Parallel()

		if _, err := NewJSONWriter(failWriter{}).Write(createTestReport()); err == nil {
			t.Error("expected write error")
		}
	})
}

// failWriter fails every write.
type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		m := NewMultiWriter(NewJSONWriter(&a), NewSimpleWriter(&b))
		n, err := m.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != a.Len()+b.Len() {
			t.Errorf("got %d bytes, expected %d", n, a.Len()+b.Len())
		}
	})

	t.Run("stops on error", func(t *testing.T) {
		t.Parallel()

		var b bytes.Buffer
		m := NewMultiWriter(NewJSONWriter(failWriter{}), NewSimpleWriter(&b))
		if _, err := m.Write(createTestReport()); err == nil {
			t.Fatal("expected error")
		}
		if b.Len() != 0 {
			t.Error("expected later writers to be skipped")
		}
	})
}

// TestTruncateString tests path truncation.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	if got := truncateString("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateString("/very/long/path/file.bin", 12); got != ".../file.bin" {
		t.Errorf("got %q", got)
	}
	if got := truncateString("abcdef", 2); got != "ef" {
		t.Errorf("got %q", got)
	}
}

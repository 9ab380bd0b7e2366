package report

import (
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/tchunt/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// printer formats counts with thousands separators.
	printer *message.Printer

	// verbose adds the scan settings to the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with the scan settings.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.ScanReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	if w.verbose {
		w.writeSettings(&sb, report)
	}
	w.writeFindings(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with scan information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ScanReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        TCHUNT SCAN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(w.printer.Sprintf("Scan ID:   %s\n", report.ID))
	sb.WriteString(w.printer.Sprintf("Root:      %s\n", model.DisplayPath(report.Root)))
	sb.WriteString(w.printer.Sprintf("Started:   %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(w.printer.Sprintf("Duration:  %s\n", report.Duration().Round(time.Millisecond)))
	sb.WriteString(w.printer.Sprintf("Status:    %s\n", cases.Title(language.English).String(statusText(report))))
	sb.WriteString("\n")
}

// writeSummary writes the counters.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.ScanReport) {
	w.section(sb, "SUMMARY")

	s := report.Summary
	rows := []struct {
		label string
		value int64
	}{
		{"Entries discovered", s.Discovered},
		{"Rejected by filter", s.Rejected},
		{"Unreadable entries", s.WalkErrors},
		{"Files evaluated", s.Completed},
		{"Failed", s.Failed},
		{"Cancelled", s.Cancelled},
		{"Known types hidden", s.Suppressed},
		{"Findings", s.Findings},
	}
	for _, r := range rows {
		sb.WriteString(w.printer.Sprintf("  %-20s %d\n", r.label+":", r.value))
	}
	sb.WriteString(w.printer.Sprintf("  %-20s %s\n", "Bytes sampled:", humanize.IBytes(uint64(max(s.BytesSampled, 0)))))
	sb.WriteString("\n")
}

// writeSettings writes the scan options.
func (w *SimpleWriter) writeSettings(sb *strings.Builder, report *model.ScanReport) {
	w.section(sb, "SETTINGS")

	o := report.Options
	sb.WriteString(w.printer.Sprintf("  %-20s %s\n", "Threshold:", model.FormatScore(o.EntropyThreshold)))
	sb.WriteString(w.printer.Sprintf("  %-20s %s\n", "Sample window:", humanize.IBytes(uint64(max(o.SampleWindow, 0)))))
	sb.WriteString(w.printer.Sprintf("  %-20s %s\n", "Minimum size:", humanize.IBytes(uint64(max(o.MinFileSize, 0)))))
	sb.WriteString(w.printer.Sprintf("  %-20s %v\n", "Sector alignment:", o.RequireSectorAlignment))
	sb.WriteString(w.printer.Sprintf("  %-20s %d\n", "Workers:", o.Workers))
	sb.WriteString(w.printer.Sprintf("  %-20s %d\n", "Queue capacity:", o.QueueCapacity))
	sb.WriteString(w.printer.Sprintf("  %-20s %v\n", "Follow symlinks:", o.FollowSymlinks))
	sb.WriteString(w.printer.Sprintf("  %-20s %v\n", "One file system:", o.OneFileSystem))
	sb.WriteString("\n")
}

// writeFindings lists the findings, highest score first.
func (w *SimpleWriter) writeFindings(sb *strings.Builder, report *model.ScanReport) {
	w.section(sb, "FINDINGS")

	if !report.HasFindings() {
		sb.WriteString("  No high-entropy files found\n\n")
		return
	}

	for _, f := range report.Findings {
		sb.WriteString(w.printer.Sprintf("  %s  %s\n", model.FormatScore(f.Score), model.DisplayPath(f.Path)))
		sb.WriteString(w.printer.Sprintf("          size: %s, type: %s\n",
			humanize.IBytes(uint64(max(f.Size, 0))), f.TypeName()))
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

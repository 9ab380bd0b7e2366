package report

import (
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/tchunt/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScanReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeFindings(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ScanReport) {
	md.H1("tchunt Scan Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Scan ID", "`" + report.ID + "`"},
			{"Root", "`" + model.DisplayPath(report.Root) + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Threshold", model.FormatScore(report.Options.EntropyThreshold)},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.ScanReport) string {
	switch {
	case report.Interrupted:
		return "⚠️ Interrupted (partial results)"
	case report.Error != "":
		return "❌ Error - " + report.Error
	default:
		return "✅ Complete"
	}
}

// writeSummary writes the counters and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.ScanReport) {
	s := report.Summary

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Entries discovered", strconv.FormatInt(s.Discovered, 10)},
			{"Rejected by filter", strconv.FormatInt(s.Rejected, 10)},
			{"Unreadable entries", strconv.FormatInt(s.WalkErrors, 10)},
			{"Files evaluated", strconv.FormatInt(s.Completed, 10)},
			{"Failed", strconv.FormatInt(s.Failed, 10)},
			{"Cancelled", strconv.FormatInt(s.Cancelled, 10)},
			{"Known types hidden", strconv.FormatInt(s.Suppressed, 10)},
			{"Bytes sampled", humanize.IBytes(uint64(max(s.BytesSampled, 0)))},
			{"**Findings**", "**" + strconv.FormatInt(s.Findings, 10) + "**"},
		},
	})
	md.PlainText("")

	if s.Terminal() > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of job outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.ScanSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Evaluated Files"),
		piechart.WithShowData(true),
	)

	clean := s.Completed - s.Findings - s.Suppressed
	if clean > 0 {
		chart.LabelAndIntValue("Below threshold", uint64(clean))
	}
	if s.Findings > 0 {
		chart.LabelAndIntValue("Findings", uint64(s.Findings))
	}
	if s.Suppressed > 0 {
		chart.LabelAndIntValue("Known types", uint64(s.Suppressed))
	}
	if s.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.Failed))
	}
	if s.Cancelled > 0 {
		chart.LabelAndIntValue("Cancelled", uint64(s.Cancelled))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.ScanReport) {
	switch {
	case report.HasFindings():
		md.Cautionf(
			"%d file(s) look like encrypted containers. Review them before drawing conclusions.",
			len(report.Findings),
		)
	case report.Interrupted:
		md.Warningf("The scan was interrupted after %d file(s); results are incomplete.", report.Summary.Terminal())
	case report.Summary.Failed > 0:
		md.Note("No high-entropy files found, but some files could not be read.")
	default:
		md.Tip("No high-entropy files found.")
	}
	md.PlainText("")
}

// writeFindings writes the findings table.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *model.ScanReport) {
	md.H2("Findings")
	md.PlainText("")

	if !report.HasFindings() {
		md.PlainText("No high-entropy files found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Findings))
	for i, f := range report.Findings {
		rows[i] = []string{
			model.FormatScore(f.Score),
			"`" + truncateString(model.DisplayPath(f.Path), 80) + "`",
			humanize.IBytes(uint64(max(f.Size, 0))),
			f.TypeName(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Score", "Path", "Size", "Type"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, f := range report.Findings {
		if f.Fingerprint != "" {
			md.Details(model.DisplayPath(f.Path), "SHA3-256 fingerprint: `"+f.Fingerprint+"`")
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by tchunt*")
}

// truncateString truncates a string to maxLen bytes with an ellipsis,
// keeping the end of the string where file names are.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[len(s)-maxLen:]
	}
	return "..." + s[len(s)-maxLen+3:]
}

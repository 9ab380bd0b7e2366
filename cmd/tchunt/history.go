package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/tchunt/internal/config"
	"github.com/nao1215/tchunt/internal/database"
	"github.com/nao1215/tchunt/internal/model"
)

// NewHistoryCmd creates the history command.
// This command reads scans saved with "tchunt scan --save".
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [directory]",
		Short: "Show and compare saved scans",
		Long: `History shows scans saved with "tchunt scan --save".

Without a directory it lists every scanned directory. With a directory it
lists the saved scans of that directory, newest first. With --compare it
shows which candidates appeared, disappeared or stayed between two scans.
Candidates are matched by content fingerprint, so a container that was
renamed or moved is not reported as new.

Examples:
  # List all scanned directories
  tchunt history

  # List scans of a directory
  tchunt history /srv

  # Compare the latest two scans of a directory
  tchunt history --compare /srv

  # Compare the latest scan with scan 3
  tchunt history --compare --with-scan-id 3 /srv

  # Find every scan that saw a container
  tchunt history --fingerprint 5f0c...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Bool("compare", false,
		"Compare the latest scan with the previous one")
	cmd.Flags().Int64P("with-scan-id", "i", 0,
		"Compare the latest scan with the scan with this ID")
	cmd.Flags().String("fingerprint", "",
		"List every saved finding with this content fingerprint")
	cmd.Flags().BoolP(config.FlagJSON, "j", false,
		"Output the comparison in JSON format")
	cmd.Flags().String(config.FlagDBDir, config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// historyOptions collects the history command flags.
type historyOptions struct {
	root        string
	compare     bool
	withScanID  int64
	fingerprint string
	jsonOutput  bool
	dbDir       string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	var opts historyOptions
	var err error

	if opts.compare, err = cmd.Flags().GetBool("compare"); err != nil {
		return err
	}
	if opts.withScanID, err = cmd.Flags().GetInt64("with-scan-id"); err != nil {
		return err
	}
	if opts.fingerprint, err = cmd.Flags().GetString("fingerprint"); err != nil {
		return err
	}
	if opts.jsonOutput, err = cmd.Flags().GetBool(config.FlagJSON); err != nil {
		return err
	}
	if opts.dbDir, err = cmd.Flags().GetString(config.FlagDBDir); err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if len(args) > 0 {
		if opts.root, err = filepath.Abs(args[0]); err != nil {
			return fmt.Errorf("failed to resolve %s: %w", args[0], err)
		}
	}
	if opts.withScanID != 0 {
		opts.compare = true
	}
	if opts.compare && opts.root == "" {
		return errors.New("a directory is required for --compare")
	}

	// History never creates the database.
	db, err := database.Open(opts.dbDir, database.Options{EnableWAL: true})
	if errors.Is(err, database.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved scans found.")
		fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'tchunt scan --save <directory>' to save a scan.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runHistory(cmd.Context(), db, opts, cmd.OutOrStdout())
}

// runHistory dispatches to the requested history view.
func runHistory(ctx context.Context, db *database.ScanDB, opts historyOptions, out io.Writer) error {
	switch {
	case opts.fingerprint != "":
		return listFingerprint(ctx, db, opts.fingerprint, out)
	case opts.compare:
		return runComparison(ctx, db, opts, out)
	case opts.root != "":
		return listScanHistory(ctx, db, opts.root, out)
	default:
		return listScannedRoots(ctx, db, out)
	}
}

// listScannedRoots lists all directories that have saved scans.
func listScannedRoots(ctx context.Context, db *database.ScanDB, out io.Writer) error {
	roots, err := db.ListScannedRoots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list directories: %w", err)
	}

	if len(roots) == 0 {
		fmt.Fprintln(out, "No saved scans found in the database.")
		fmt.Fprintln(out, "\nUse 'tchunt scan --save <directory>' to save a scan.")
		return nil
	}

	fmt.Fprintf(out, "Scanned directories (%d):\n\n", len(roots))
	for _, root := range roots {
		fmt.Fprintf(out, "  • %s\n", root)
	}
	fmt.Fprintln(out, "\nUse 'tchunt history <directory>' to see the scans of a directory.")

	return nil
}

// listScanHistory lists all saved scans of root.
func listScanHistory(ctx context.Context, db *database.ScanDB, root string, out io.Writer) error {
	reports, err := db.GetScanHistoryWithMetadata(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}

	if len(reports) == 0 {
		fmt.Fprintf(out, "No scan history found for %s\n", root)
		fmt.Fprintln(out, "\nUse 'tchunt scan --save' to save a scan of this directory.")
		return nil
	}

	fmt.Fprintf(out, "Scan history for %s (%d scans):\n\n", root, len(reports))
	fmt.Fprintf(out, "  %-6s  %-20s  %-9s  %-8s  %s\n", "ID", "Date", "Findings", "Checked", "Status")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))

	for _, meta := range reports {
		status := "complete"
		if meta.Interrupted {
			status = "interrupted"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-9d  %-8d  %s\n",
			meta.ID,
			meta.StartedAt.Local().Format("2006-01-02 15:04:05"),
			meta.FindingCount,
			meta.Summary.Completed,
			status,
		)
	}

	fmt.Fprintln(out, "\nUse 'tchunt history --compare <directory>' to compare the latest two scans.")
	return nil
}

// listFingerprint lists every saved finding with the given fingerprint.
func listFingerprint(ctx context.Context, db *database.ScanDB, fingerprint string, out io.Writer) error {
	records, err := db.FindByFingerprint(ctx, strings.ToLower(strings.TrimSpace(fingerprint)))
	if err != nil {
		return fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No saved finding has fingerprint %s\n", fingerprint)
		return nil
	}

	fmt.Fprintf(out, "Fingerprint %s seen %d times:\n\n", fingerprint, len(records))
	for _, rec := range records {
		fmt.Fprintf(out, "  scan %-4d  %s  %s  %s  %s\n",
			rec.ReportID,
			rec.StartedAt.Local().Format("2006-01-02 15:04"),
			model.FormatScore(rec.Score),
			humanize.IBytes(uint64(max(rec.Size, 0))),
			model.DisplayPath(rec.Path),
		)
	}
	return nil
}

// runComparison compares the latest scan of a directory with an earlier one.
func runComparison(ctx context.Context, db *database.ScanDB, opts historyOptions, out io.Writer) error {
	reports, err := db.GetLatestScanReports(ctx, opts.root, 2)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}
	if len(reports) == 0 {
		return fmt.Errorf("no scan history found for %s", opts.root)
	}

	current := reports[0]
	var previous *model.ScanReport

	if opts.withScanID > 0 {
		previous, err = db.GetScanReportByID(ctx, opts.withScanID)
		if err != nil {
			return fmt.Errorf("failed to get scan with ID %d: %w", opts.withScanID, err)
		}
		if previous == nil {
			return fmt.Errorf("scan with ID %d not found", opts.withScanID)
		}
		if previous.Root != opts.root {
			return fmt.Errorf("scan ID %d belongs to %s, not %s", opts.withScanID, previous.Root, opts.root)
		}
	} else {
		if len(reports) < 2 {
			return fmt.Errorf("at least 2 scans are required for comparison (found %d)", len(reports))
		}
		previous = reports[1]
	}

	comparison := compareReports(previous, current)
	if opts.jsonOutput {
		return outputComparisonJSON(comparison, out)
	}
	return outputComparisonText(comparison, out)
}

// ComparisonResult holds the result of comparing two scan reports.
type ComparisonResult struct {
	// Root is the scanned directory.
	Root string `json:"root"`

	// PreviousScan contains metadata about the previous scan.
	PreviousScan ScanMetadata `json:"previous_scan"`

	// CurrentScan contains metadata about the current scan.
	CurrentScan ScanMetadata `json:"current_scan"`

	// NewFindings are candidates only the current scan reported.
	NewFindings []model.Finding `json:"new_findings,omitempty"`

	// ResolvedFindings are candidates only the previous scan reported.
	ResolvedFindings []model.Finding `json:"resolved_findings,omitempty"`

	// MovedFindings are candidates whose content matched but whose path changed.
	MovedFindings []MovedFinding `json:"moved_findings,omitempty"`

	// UnchangedCount is the number of candidates both scans reported.
	UnchangedCount int `json:"unchanged_count"`
}

// ScanMetadata contains metadata about a scan for comparison display.
type ScanMetadata struct {
	ID            string `json:"id"`
	StartedAt     string `json:"started_at"`
	TotalFindings int    `json:"total_findings"`
	Checked       int64  `json:"checked"`
	Interrupted   bool   `json:"interrupted"`
}

// MovedFinding is a candidate found at a new path.
type MovedFinding struct {
	From    string        `json:"from"`
	Finding model.Finding `json:"finding"`
}

func newScanMetadata(r *model.ScanReport) ScanMetadata {
	return ScanMetadata{
		ID:            r.ID,
		StartedAt:     r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		TotalFindings: len(r.Findings),
		Checked:       r.Summary.Completed,
		Interrupted:   r.Interrupted,
	}
}

// compareReports matches the findings of two reports by Finding.Key.
func compareReports(previous, current *model.ScanReport) *ComparisonResult {
	result := &ComparisonResult{
		Root:         current.Root,
		PreviousScan: newScanMetadata(previous),
		CurrentScan:  newScanMetadata(current),
	}

	previousFindings := make(map[string]model.Finding, len(previous.Findings))
	for _, f := range previous.Findings {
		previousFindings[f.Key()] = f
	}
	currentKeys := make(map[string]bool, len(current.Findings))

	for _, f := range current.Findings {
		key := f.Key()
		currentKeys[key] = true
		old, ok := previousFindings[key]
		switch {
		case !ok:
			result.NewFindings = append(result.NewFindings, f)
		case old.Path != f.Path:
			result.MovedFindings = append(result.MovedFindings, MovedFinding{From: old.Path, Finding: f})
		default:
			result.UnchangedCount++
		}
	}

	for _, f := range previous.Findings {
		if !currentKeys[f.Key()] {
			result.ResolvedFindings = append(result.ResolvedFindings, f)
		}
	}

	byPath := func(s []model.Finding) {
		sort.Slice(s, func(i, j int) bool { return s[i].Path < s[j].Path })
	}
	byPath(result.NewFindings)
	byPath(result.ResolvedFindings)

	return result
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(result *ComparisonResult, out io.Writer) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(result *ComparisonResult, out io.Writer) error {
	fmt.Fprintf(out, "Scan Comparison: %s\n", result.Root)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious scan: %s (%d findings)\n", result.PreviousScan.StartedAt, result.PreviousScan.TotalFindings)
	fmt.Fprintf(out, "Current scan:  %s (%d findings)\n", result.CurrentScan.StartedAt, result.CurrentScan.TotalFindings)
	if result.PreviousScan.Interrupted || result.CurrentScan.Interrupted {
		fmt.Fprintln(out, "\nNote: an interrupted scan is involved; missing candidates may not have been checked.")
	}

	if len(result.NewFindings) > 0 {
		fmt.Fprintf(out, "\nNew Findings (%d):\n", len(result.NewFindings))
		for _, f := range result.NewFindings {
			fmt.Fprintf(out, "  [+] %s %s\n", model.FormatScore(f.Score), model.DisplayPath(f.Path))
		}
	}

	if len(result.MovedFindings) > 0 {
		fmt.Fprintf(out, "\nMoved Findings (%d):\n", len(result.MovedFindings))
		for _, m := range result.MovedFindings {
			fmt.Fprintf(out, "  [>] %s -> %s\n", model.DisplayPath(m.From), model.DisplayPath(m.Finding.Path))
		}
	}

	if len(result.ResolvedFindings) > 0 {
		fmt.Fprintf(out, "\nResolved Findings (%d):\n", len(result.ResolvedFindings))
		for _, f := range result.ResolvedFindings {
			fmt.Fprintf(out, "  [-] %s %s\n", model.FormatScore(f.Score), model.DisplayPath(f.Path))
		}
	}

	if len(result.NewFindings)+len(result.MovedFindings)+len(result.ResolvedFindings) == 0 {
		fmt.Fprintln(out, "\nNo changes.")
	}
	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d findings\n", result.UnchangedCount)
	}

	return nil
}

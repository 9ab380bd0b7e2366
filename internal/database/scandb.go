package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/tchunt/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "tchunt.db"

// ErrNotFound is returned by Open when the database does not exist and
// creation was not requested.
var ErrNotFound = errors.New("database not found")

// ScanDB provides SQLite-based storage for scan reports.
type ScanDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ScanDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a ScanDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, ErrNotFound is returned.
func Open(dbDir string, opts Options) (*ScanDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &ScanDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (sdb *ScanDB) Close() error {
	return sdb.db.Close()
}

// Path returns the database file path.
func (sdb *ScanDB) Path() string {
	return sdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (sdb *ScanDB) createTables() error {
	schema := `
	-- One row per saved scan; the full report is kept as JSON
	CREATE TABLE IF NOT EXISTS scan_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL UNIQUE,
		root TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		interrupted INTEGER NOT NULL DEFAULT 0,
		finding_count INTEGER NOT NULL DEFAULT 0,
		summary_json TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_root ON scan_reports(root);
	CREATE INDEX IF NOT EXISTS idx_reports_started ON scan_reports(started_at);

	-- Findings are duplicated out of the report for cross-scan lookups
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id INTEGER NOT NULL REFERENCES scan_reports(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		score REAL NOT NULL,
		size INTEGER NOT NULL,
		fingerprint TEXT,
		mime TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_findings_report ON findings(report_id);
	CREATE INDEX IF NOT EXISTS idx_findings_fingerprint ON findings(fingerprint);
	`

	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveScanReport stores a finished report and its findings in one
// transaction and returns the database ID of the report.
func (sdb *ScanDB) SaveScanReport(ctx context.Context, report *model.ScanReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}
	summaryJSON, err := json.Marshal(report.Summary)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize summary: %w", err)
	}

	tx, err := sdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
	INSERT INTO scan_reports (scan_id, root, started_at, finished_at, interrupted, finding_count, summary_json, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.Root,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Interrupted,
		len(report.Findings),
		string(summaryJSON),
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan report: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get report id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO findings (report_id, path, score, size, fingerprint, mime)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare finding insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range report.Findings {
		var mime sql.NullString
		if f.Type != nil {
			mime = sql.NullString{String: f.Type.MIME, Valid: true}
		}
		fp := sql.NullString{String: f.Fingerprint, Valid: f.Fingerprint != ""}
		if _, err := stmt.ExecContext(ctx, id, f.Path, float64(f.Score), f.Size, fp, mime); err != nil {
			return 0, fmt.Errorf("failed to save finding %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan report: %w", err)
	}
	return id, nil
}

// GetLatestScanReport retrieves the most recent scan report for root.
// It returns nil without error when root was never scanned.
func (sdb *ScanDB) GetLatestScanReport(ctx context.Context, root string) (*model.ScanReport, error) {
	reports, err := sdb.GetLatestScanReports(ctx, root, 1)
	if err != nil || len(reports) == 0 {
		return nil, err
	}
	return reports[0], nil
}

// GetLatestScanReports retrieves up to limit scan reports for root,
// newest first.
func (sdb *ScanDB) GetLatestScanReports(ctx context.Context, root string, limit int) ([]*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE root = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`

	rows, err := sdb.db.QueryContext(ctx, query, root, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan reports: %w", err)
	}
	defer rows.Close()

	var reports []*model.ScanReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		var report model.ScanReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue // Skip malformed reports
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// ListScannedRoots returns every root with at least one saved scan.
func (sdb *ScanDB) ListScannedRoots(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT root FROM scan_reports
	ORDER BY root
	`

	rows, err := sdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan root: %w", err)
		}
		roots = append(roots, root)
	}

	return roots, rows.Err()
}

// ScanReportMetadata contains summary information about a saved scan.
// It is used for displaying history without loading full reports.
type ScanReportMetadata struct {
	// ID is the database ID of the report.
	ID int64

	// ScanID is the report's own identifier.
	ScanID string

	// Root is the scanned directory.
	Root string

	// StartedAt is when the scan began.
	StartedAt time.Time

	// FinishedAt is when the scan ended.
	FinishedAt time.Time

	// Interrupted reports whether the scan was cancelled.
	Interrupted bool

	// FindingCount is the number of findings in the report.
	FindingCount int

	// Summary holds the scan counters.
	Summary model.ScanSummary
}

// GetScanHistoryWithMetadata retrieves metadata for every saved scan of
// root, newest first.
func (sdb *ScanDB) GetScanHistoryWithMetadata(ctx context.Context, root string) ([]ScanReportMetadata, error) {
	query := `
	SELECT id, scan_id, root, started_at, finished_at, interrupted, finding_count, summary_json
	FROM scan_reports
	WHERE root = ?
	ORDER BY started_at DESC, id DESC
	`

	rows, err := sdb.db.QueryContext(ctx, query, root)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close()

	var results []ScanReportMetadata
	for rows.Next() {
		var (
			meta        ScanReportMetadata
			started     string
			finished    sql.NullString
			summaryJSON sql.NullString
		)
		if err := rows.Scan(&meta.ID, &meta.ScanID, &meta.Root, &started, &finished,
			&meta.Interrupted, &meta.FindingCount, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.StartedAt = parseTimestamp(started)
		if finished.Valid {
			meta.FinishedAt = parseTimestamp(finished.String)
		}
		if summaryJSON.Valid && summaryJSON.String != "" {
			// A malformed summary leaves zero counters.
			_ = json.Unmarshal([]byte(summaryJSON.String), &meta.Summary) //nolint:errcheck // best effort
		}

		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetScanReportByID retrieves a scan report by its database ID.
// It returns nil without error when no such report exists.
func (sdb *ScanDB) GetScanReportByID(ctx context.Context, id int64) (*model.ScanReport, error) {
	query := `
	SELECT report_json FROM scan_reports
	WHERE id = ?
	`

	var reportJSON string
	err := sdb.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan report: %w", err)
	}

	var report model.ScanReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// FindingRecord is a stored finding together with the scan it came from.
type FindingRecord struct {
	ReportID    int64
	ScanID      string
	Root        string
	StartedAt   time.Time
	Path        string
	Score       float32
	Size        int64
	Fingerprint string
	MIME        string
}

// FindByFingerprint returns every stored finding with the given
// fingerprint, newest scan first.
func (sdb *ScanDB) FindByFingerprint(ctx context.Context, fingerprint string) ([]FindingRecord, error) {
	query := `
	SELECT r.id, r.scan_id, r.root, r.started_at, f.path, f.score, f.size, f.fingerprint, COALESCE(f.mime, '')
	FROM findings f
	JOIN scan_reports r ON r.id = f.report_id
	WHERE f.fingerprint = ?
	ORDER BY r.started_at DESC, r.id DESC
	`

	rows, err := sdb.db.QueryContext(ctx, query, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var records []FindingRecord
	for rows.Next() {
		var (
			rec     FindingRecord
			started string
			score   float64
		)
		if err := rows.Scan(&rec.ReportID, &rec.ScanID, &rec.Root, &started,
			&rec.Path, &score, &rec.Size, &rec.Fingerprint, &rec.MIME); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		rec.StartedAt = parseTimestamp(started)
		rec.Score = float32(score)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// timestampLayout sorts lexicographically in chronological order for UTC times.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",  // ISO 8601 without timezone
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

package config

import (
	"math"
	"path/filepath"
	"runtime"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/tchunt/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "tchunt"

	// DefaultMinFileSize is the smallest file evaluated (10 MiB). Smaller
	// files rarely hold containers and their entropy is less meaningful.
	DefaultMinFileSize int64 = 10 << 20

	// DefaultSectorSize is the alignment unit containers are created with.
	DefaultSectorSize int64 = 512

	// DefaultEntropyThreshold is the score a file must exceed to be reported.
	DefaultEntropyThreshold float32 = 7.9

	// DefaultSampleWindow is the number of bytes read from each end of a file.
	DefaultSampleWindow int64 = 171072

	// DefaultQueueFactor sizes the work queue relative to the worker count.
	DefaultQueueFactor = 4

	// DefaultProgressInterval is how often progress is logged.
	DefaultProgressInterval = 5 * time.Second

	// MaxEntropy is the largest possible score in bits per byte.
	MaxEntropy float32 = 8.0
)

// Config holds all configuration options for a scan.
// It is populated from CLI flags (and optionally a profile file) and passed
// through the application rather than kept in global state.
type Config struct {
	// Root is the directory to scan.
	Root string

	// MinFileSize is the smallest file size in bytes that is evaluated.
	MinFileSize int64

	// RequireSectorAlignment rejects files whose size is not a multiple of SectorSize.
	RequireSectorAlignment bool

	// SectorSize is the alignment unit in bytes.
	SectorSize int64

	// EntropyThreshold is the score in [0, 8] a file must exceed to be reported.
	EntropyThreshold float32

	// SampleWindow is the number of bytes sampled from the head (and tail) of a file.
	SampleWindow int64

	// Workers is the number of files evaluated concurrently.
	// It also bounds the number of files open at once.
	Workers int

	// QueueCapacity is the work queue capacity. Zero means
	// DefaultQueueFactor times Workers.
	QueueCapacity int

	// FollowSymlinks descends into symlinked directories.
	FollowSymlinks bool

	// OneFileSystem keeps traversal on the device of Root.
	OneFileSystem bool

	// ExcludePatterns are glob patterns matched against entry base names.
	ExcludePatterns []string

	// SniffTypes runs magic-byte type detection on high-entropy files.
	SniffTypes bool

	// ReportKnownTypes streams findings whose type was identified instead of
	// hiding them.
	ReportKnownTypes bool

	// KnownTypes limits suppression to these MIME prefixes.
	// Empty means every identified type is suppressed.
	KnownTypes []string

	// Fingerprint adds a content fingerprint to every finding.
	Fingerprint bool

	// JSONOutput streams findings as JSON Lines instead of "score path" lines.
	JSONOutput bool

	// ReportFormat selects a summary report written after the scan:
	// "" (none), "text", "markdown" or "json".
	ReportFormat string

	// ReportFile is the destination of the summary report.
	// Empty means standard output.
	ReportFile string

	// SaveToDB stores the scan report in the history database.
	SaveToDB bool

	// DBDir is the directory of the history database.
	DBDir string

	// ConfigFilePath is the profile file to read. Empty means no file.
	ConfigFilePath string

	// ProgressInterval is how often progress is logged. Zero disables it.
	ProgressInterval time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// JSONLogs switches the log stream to JSON.
	JSONLogs bool

	// RelativePaths logs paths relative to Root.
	RelativePaths bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MinFileSize:            DefaultMinFileSize,
		RequireSectorAlignment: true,
		SectorSize:             DefaultSectorSize,
		EntropyThreshold:       DefaultEntropyThreshold,
		SampleWindow:           DefaultSampleWindow,
		Workers:                runtime.NumCPU(),
		SniffTypes:             true,
		Fingerprint:            true,
		DBDir:                  XDGDataDir(),
		ProgressInterval:       DefaultProgressInterval,
	}
}

// XDGDataDir returns the XDG data directory for tchunt.
// On Linux: ~/.local/share/tchunt
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for tchunt.
// On Linux: ~/.config/tchunt
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// EffectiveQueueCapacity returns the queue capacity used for a scan.
func (c *Config) EffectiveQueueCapacity() int {
	if c.QueueCapacity > 0 {
		return c.QueueCapacity
	}
	return DefaultQueueFactor * max(c.Workers, 1)
}

// ScanOptions returns the tunables recorded in scan reports.
func (c *Config) ScanOptions() model.ScanOptions {
	return model.ScanOptions{
		MinFileSize:            c.MinFileSize,
		RequireSectorAlignment: c.RequireSectorAlignment,
		SectorSize:             c.SectorSize,
		EntropyThreshold:       c.EntropyThreshold,
		SampleWindow:           c.SampleWindow,
		Workers:                c.Workers,
		QueueCapacity:          c.EffectiveQueueCapacity(),
		FollowSymlinks:         c.FollowSymlinks,
		OneFileSystem:          c.OneFileSystem,
	}
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.Root == "" {
		return ErrNoRoot
	}

	threshold := float64(c.EntropyThreshold)
	if math.IsNaN(threshold) || c.EntropyThreshold < 0 || c.EntropyThreshold > MaxEntropy {
		return ErrInvalidThreshold
	}

	if c.SampleWindow <= 0 {
		return ErrInvalidWindow
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.QueueCapacity < 0 {
		return ErrInvalidQueueCapacity
	}

	if c.MinFileSize < 0 {
		return ErrInvalidMinSize
	}

	if c.RequireSectorAlignment && c.SectorSize <= 0 {
		return ErrInvalidSectorSize
	}

	if c.ProgressInterval < 0 {
		return ErrInvalidProgressInterval
	}

	for _, p := range c.ExcludePatterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return ErrInvalidExcludePattern
		}
	}

	switch c.ReportFormat {
	case "", "text", "txt", "markdown", "md", "json":
	default:
		return ErrUnknownReportFormat
	}

	// A report on stdout would corrupt the JSON Lines stream.
	if c.JSONOutput && c.ReportFormat != "" && c.ReportFile == "" {
		return ErrConflictingOutputFormats
	}

	return nil
}

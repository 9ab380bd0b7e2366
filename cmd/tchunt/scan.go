package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/tchunt/internal/config"
	"github.com/nao1215/tchunt/internal/database"
	"github.com/nao1215/tchunt/internal/entropy"
	"github.com/nao1215/tchunt/internal/evaluator"
	"github.com/nao1215/tchunt/internal/filter"
	tlog "github.com/nao1215/tchunt/internal/log"
	"github.com/nao1215/tchunt/internal/model"
	"github.com/nao1215/tchunt/internal/pipeline"
	"github.com/nao1215/tchunt/internal/report"
	"github.com/nao1215/tchunt/internal/sniff"
	"github.com/nao1215/tchunt/internal/walker"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "Scan a directory tree for encrypted containers",
		Long: `Scan walks a directory tree and prints every file that looks like an
encrypted container, as "score path" lines on standard output.

A file is evaluated when it is a regular file of at least --min-size bytes
whose size is a multiple of 512 (unless --no-align). Its first and last
--window bytes are sampled and the file is reported when their Shannon
entropy exceeds --threshold bits per byte.

Examples:
  # Scan a home directory
  tchunt scan ~/

  # Lower the size limit and include files of any length
  tchunt scan --min-size 1MiB --no-align /mnt/usb

  # Stream findings as JSON Lines and write a Markdown report
  tchunt scan --json --report markdown -o report.md /srv

  # Keep the results for "tchunt history"
  tchunt scan --save /srv

  # Read per-directory settings from a profile file
  tchunt scan -c ~/.config/tchunt/tchunt.yaml /srv`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScanCmd,
	}

	defaults := config.NewConfig()

	// Selection flags
	cmd.Flags().String(config.FlagMinSize, humanize.IBytes(uint64(defaults.MinFileSize)),
		"Smallest file size to evaluate (e.g. 10MiB, 512KB)")
	cmd.Flags().Bool(config.FlagNoAlign, false,
		"Evaluate files whose size is not a multiple of 512 bytes")
	cmd.Flags().StringSlice(config.FlagExclude, nil,
		"Glob pattern for file or directory names to skip (repeatable)")
	cmd.Flags().BoolP(config.FlagFollowSymlinks, "L", false,
		"Follow symbolic links")
	cmd.Flags().BoolP(config.FlagOneFileSystem, "x", false,
		"Do not descend into directories on other file systems")

	// Detection flags
	cmd.Flags().Float32P(config.FlagThreshold, "t", defaults.EntropyThreshold,
		"Entropy in bits per byte a file must exceed to be reported (0-8)")
	cmd.Flags().String(config.FlagWindow, fmt.Sprint(defaults.SampleWindow),
		"Bytes sampled from the start and the end of each file")
	cmd.Flags().Bool(config.FlagNoSniff, false,
		"Do not check file signatures of high-entropy files")
	cmd.Flags().Bool(config.FlagShowKnown, false,
		"Report high-entropy files with a recognized signature too")
	cmd.Flags().StringSlice(config.FlagKnownType, nil,
		"Only hide recognized files whose MIME type starts with this prefix (repeatable)")
	cmd.Flags().Bool(config.FlagNoFingerprint, false,
		"Do not compute content fingerprints")

	// Concurrency flags
	cmd.Flags().IntP(config.FlagWorkers, "w", defaults.Workers,
		"Number of files evaluated concurrently")
	cmd.Flags().Int(config.FlagQueue, 0,
		"Work queue capacity (default 4 x workers)")

	// Output flags
	cmd.Flags().BoolP(config.FlagJSON, "j", false,
		"Print findings as JSON Lines")
	cmd.Flags().StringP(config.FlagReport, "r", "",
		"Write a summary report after the scan: text, markdown or json")
	cmd.Flags().StringP(config.FlagOutput, "o", "",
		"Write the report to this file instead of standard output")
	cmd.Flags().Bool(config.FlagSave, false,
		"Save the scan to the history database")
	cmd.Flags().String(config.FlagDBDir, defaults.DBDir,
		"Directory of the history database")

	// Logging flags
	cmd.Flags().Duration(config.FlagProgress, defaults.ProgressInterval,
		"Interval between progress log lines (0 disables)")
	cmd.Flags().Bool(config.FlagJSONLogs, false,
		"Write logs as JSON")
	cmd.Flags().Bool(config.FlagRelativePaths, false,
		"Log paths relative to the scanned directory")

	// Configuration file
	cmd.Flags().StringP(config.FlagConfig, "c", "",
		"Profile file with per-directory settings (not read unless given)")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	_, err = runScan(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
	return err
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool(config.FlagVerbose)
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool(config.FlagVerbose)
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and, when given,
// the profile file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	if len(args) > 0 {
		cfg.Root = args[0]
	}
	cfg.Verbose = getVerboseFlag(cmd)

	var err error

	minSize, err := flags.GetString(config.FlagMinSize)
	if err != nil {
		return nil, err
	}
	if cfg.MinFileSize, err = config.ParseSize(minSize); err != nil {
		return nil, fmt.Errorf("--%s: %w", config.FlagMinSize, err)
	}

	noAlign, err := flags.GetBool(config.FlagNoAlign)
	if err != nil {
		return nil, err
	}
	cfg.RequireSectorAlignment = !noAlign

	if cfg.ExcludePatterns, err = flags.GetStringSlice(config.FlagExclude); err != nil {
		return nil, err
	}
	if cfg.FollowSymlinks, err = flags.GetBool(config.FlagFollowSymlinks); err != nil {
		return nil, err
	}
	if cfg.OneFileSystem, err = flags.GetBool(config.FlagOneFileSystem); err != nil {
		return nil, err
	}
	if cfg.EntropyThreshold, err = flags.GetFloat32(config.FlagThreshold); err != nil {
		return nil, err
	}

	window, err := flags.GetString(config.FlagWindow)
	if err != nil {
		return nil, err
	}
	if cfg.SampleWindow, err = config.ParseSize(window); err != nil {
		return nil, fmt.Errorf("--%s: %w", config.FlagWindow, err)
	}

	noSniff, err := flags.GetBool(config.FlagNoSniff)
	if err != nil {
		return nil, err
	}
	cfg.SniffTypes = !noSniff

	if cfg.ReportKnownTypes, err = flags.GetBool(config.FlagShowKnown); err != nil {
		return nil, err
	}
	if cfg.KnownTypes, err = flags.GetStringSlice(config.FlagKnownType); err != nil {
		return nil, err
	}

	noFingerprint, err := flags.GetBool(config.FlagNoFingerprint)
	if err != nil {
		return nil, err
	}
	cfg.Fingerprint = !noFingerprint

	if cfg.Workers, err = flags.GetInt(config.FlagWorkers); err != nil {
		return nil, err
	}
	if cfg.QueueCapacity, err = flags.GetInt(config.FlagQueue); err != nil {
		return nil, err
	}
	if cfg.JSONOutput, err = flags.GetBool(config.FlagJSON); err != nil {
		return nil, err
	}
	if cfg.ReportFormat, err = flags.GetString(config.FlagReport); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString(config.FlagOutput); err != nil {
		return nil, err
	}
	if cfg.SaveToDB, err = flags.GetBool(config.FlagSave); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString(config.FlagDBDir); err != nil {
		return nil, err
	}
	if cfg.ProgressInterval, err = flags.GetDuration(config.FlagProgress); err != nil {
		return nil, err
	}
	if cfg.JSONLogs, err = flags.GetBool(config.FlagJSONLogs); err != nil {
		return nil, err
	}
	if cfg.RelativePaths, err = flags.GetBool(config.FlagRelativePaths); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString(config.FlagConfig); err != nil {
		return nil, err
	}

	// The profile file is only read when requested explicitly.
	if cfg.ConfigFilePath != "" {
		cf, err := config.LoadConfigFile(cfg.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		if err := cfg.ApplyProfile(cf.ProfileFor(cfg.Root), flags.Changed); err != nil {
			return nil, fmt.Errorf("failed to apply profile for %s: %w", cfg.Root, err)
		}
	}

	return cfg, nil
}

// setupLogger creates a structured logger based on the logging settings.
func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var opts []tlog.Option
	if cfg.RelativePaths {
		opts = append(opts, tlog.WithRoot(cfg.Root))
	}
	if cfg.JSONLogs {
		return tlog.NewJSONLogger(w, cfg.Verbose, opts...)
	}
	return tlog.NewLogger(w, cfg.Verbose, opts...)
}

// newCoordinator wires the scan components described by cfg.
func newCoordinator(cfg *config.Config, logger *slog.Logger) *pipeline.Coordinator {
	w := walker.New(walker.Options{
		FollowSymlinks: cfg.FollowSymlinks,
		OneFileSystem:  cfg.OneFileSystem,
		Exclude:        cfg.ExcludePatterns,
		Logger:         logger,
	})

	f := filter.New(filter.Options{
		MinSize:                cfg.MinFileSize,
		RequireSectorAlignment: cfg.RequireSectorAlignment,
		SectorSize:             cfg.SectorSize,
	})

	evalOpts := []evaluator.Option{
		evaluator.WithThreshold(cfg.EntropyThreshold),
		evaluator.WithEstimator(entropy.New(entropy.WithWindow(cfg.SampleWindow))),
		evaluator.WithFingerprint(cfg.Fingerprint),
		evaluator.WithFollowSymlinks(cfg.FollowSymlinks),
		evaluator.WithLogger(logger),
	}
	if cfg.SniffTypes {
		evalOpts = append(evalOpts,
			evaluator.WithIdentifier(sniff.NewMIMEIdentifier()),
			evaluator.WithPolicy(sniff.Policy{
				KnownTypes:  cfg.KnownTypes,
				ReportKnown: cfg.ReportKnownTypes,
			}),
		)
	}

	return pipeline.New(w, f, evaluator.New(evalOpts...),
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithQueueCapacity(cfg.EffectiveQueueCapacity()),
		pipeline.WithProgressInterval(cfg.ProgressInterval),
		pipeline.WithLogger(logger),
	)
}

// newFindingSink returns the stream that prints findings as they arrive.
func newFindingSink(cfg *config.Config, out io.Writer) report.Sink {
	if cfg.JSONOutput {
		return report.NewJSONLinesWriter(out)
	}
	return report.NewLineWriter(out, report.WithTypeAnnotation(cfg.ReportKnownTypes))
}

// runScan executes one scan. Findings are streamed to out while the scan
// runs; the report and the history entry are produced afterwards. An
// interrupted scan still gets its partial report.
func runScan(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*model.ScanReport, error) {
	// Open the database first so a broken history store fails before the walk.
	var db *database.ScanDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "dir", cfg.DBDir)
	}

	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", cfg.Root, err)
	}
	scanReport := model.NewScanReport(absRoot, cfg.ScanOptions())

	collector := report.NewCollector()
	sink := report.NewMultiSink(newFindingSink(cfg, out), collector)

	summary, scanErr := newCoordinator(cfg, logger).Run(ctx, cfg.Root, sink)
	scanReport.Interrupted = errors.Is(scanErr, context.Canceled) || errors.Is(scanErr, context.DeadlineExceeded)
	scanReport.Finish(*summary, collector.Findings(), scanErr)

	if scanErr != nil && !scanReport.Interrupted {
		return scanReport, fmt.Errorf("scan of %s failed: %w", cfg.Root, scanErr)
	}

	if cfg.ReportFormat != "" {
		if err := outputReport(cfg, scanReport, out); err != nil {
			return scanReport, fmt.Errorf("failed to write report: %w", err)
		}
	}

	if err := saveScanReport(context.WithoutCancel(ctx), db, scanReport, logger); err != nil {
		return scanReport, err
	}

	if scanReport.Interrupted {
		return scanReport, fmt.Errorf("scan of %s interrupted: %w", cfg.Root, scanErr)
	}
	return scanReport, nil
}

// outputReport writes the scan report in the requested format to the
// report file, or to stdout when no file is set.
func outputReport(cfg *config.Config, scanReport *model.ScanReport, stdout io.Writer) error {
	format, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return err
	}

	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports list file locations; keep them private to the owner.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	if format == report.FormatText {
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	} else if writer, err = report.NewWriter(format, output); err != nil {
		return err
	}
	_, err = writer.Write(scanReport)
	return err
}

// saveScanReport saves the scan report to the database.
// If db is nil, this function is a no-op.
func saveScanReport(ctx context.Context, db *database.ScanDB, scanReport *model.ScanReport, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	id, err := db.SaveScanReport(ctx, scanReport)
	if err != nil {
		return fmt.Errorf("failed to save scan report: %w", err)
	}

	logger.Info("scan report saved to database", "root", scanReport.Root, "id", id)
	return nil
}

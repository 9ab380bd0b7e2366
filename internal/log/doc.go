// Package log provides the tchunt loggers, built on top of the standard
// slog package.
//
// File names are attacker-controlled input: a directory can contain names
// with newlines or terminal escape sequences. The PathHandler escapes such
// characters in path attributes before they reach the underlying handler
// and can shorten paths to be relative to the scan root.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose, log.WithRoot("/srv"))
//	logger.Info("scan progress", "path", "/srv/data/disk.img")
//	// path=data/disk.img
//
// Findings are not log records; they are written to standard output by the
// report sinks. Logs always go to standard error.
package log

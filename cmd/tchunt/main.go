// Package main provides the entry point for the tchunt CLI.
//
// tchunt walks a directory tree and reports files whose contents look
// encrypted: large, sector-aligned files with near-maximal byte entropy and
// no recognizable file signature, such as VeraCrypt or TrueCrypt containers.
//
// Usage:
//
//	tchunt scan <directory>
//	tchunt history [directory]
//
// See --help for all available options.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the conventional status for a run stopped by SIGINT.
const exitInterrupted = 130

// main is the entry point for tchunt.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := Execute(ctx)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		os.Exit(exitInterrupted)
	default:
		os.Exit(1)
	}
}

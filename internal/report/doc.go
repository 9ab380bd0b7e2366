// Package report delivers scan results.
//
// Sinks receive findings one at a time while a scan runs: plain
// "score path" lines, JSON Lines, or an in-memory collector used to build
// the final report. Writers render a finished ScanReport as text, Markdown
// or JSON.
package report

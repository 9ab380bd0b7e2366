// Package model defines the core data structures used throughout tchunt.
//
// This package contains the following main types:
//   - PathEntry: A filesystem path with the metadata captured during traversal
//   - ScanJob: One accepted PathEntry waiting in (or claimed from) the work queue
//   - Finding: A file whose sampled entropy exceeded the detection threshold
//   - ScanSummary: Counters describing how far a scan progressed
//   - ScanReport: The complete, serializable result of one scan
//
// Models live in their own package because the walker, filter, evaluator,
// pipeline, report and database packages all exchange them.
//
// All types are plain values and are safe to copy. None of them is persisted
// except ScanReport, which the database package stores as JSON.
package model

// Package evaluator turns one filter-accepted path into zero or one
// Finding.
//
// An evaluation re-checks the file metadata, samples the file through the
// entropy estimator and compares the score against the detection threshold.
// Only files above the threshold pay for the extra work: a content
// fingerprint and a magic-byte type lookup. Every failure is returned to
// the caller as an error for that single file.
package evaluator

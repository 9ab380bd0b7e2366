// Package filter decides which filesystem entries are worth an entropy
// evaluation.
//
// The decision is made from cached metadata only: the filter never opens
// a file. Encrypted containers are created with sizes that are multiples of
// the sector size and are usually large, so everything else is rejected
// before any I/O happens.
package filter

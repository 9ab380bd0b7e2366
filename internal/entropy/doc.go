// Package entropy estimates the Shannon entropy of a byte source from a
// bounded sample.
//
// The estimator reads a fixed window from the start of the source and, when
// the source is more than twice the window long, a second window from its
// end. Both windows feed one 256-bucket histogram. The cost of an estimate is
// therefore O(window) regardless of the source length, and the middle of a
// large file is never read.
//
// Scores are bits per byte in [0, 8]: uniformly random data approaches 8.0,
// constant data scores 0.0. The score depends only on byte frequencies, not
// on byte order.
package entropy

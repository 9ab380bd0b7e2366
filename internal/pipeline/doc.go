// Package pipeline runs a scan: one producer walks the tree and feeds a
// bounded queue, a fixed pool of workers evaluates the queued files, and
// findings flow to a sink as soon as they are produced.
//
// The queue capacity bounds memory no matter how large the tree is, and the
// pool size bounds the number of files open at once. A per-file failure is
// counted and logged; only root errors, sink errors and cancellation end a
// scan early. Run returns after every queued job reached a terminal state.
package pipeline

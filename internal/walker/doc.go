// Package walker enumerates every entry below a scan root.
//
// Traversal is resilient: an entry that cannot be read (permission denied,
// vanished during the walk, broken symlink when following links) is logged
// and skipped while its siblings are still visited. Only problems with the
// root itself, a callback error or cancellation end a walk early.
package walker

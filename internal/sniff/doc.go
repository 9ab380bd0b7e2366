// Package sniff identifies file formats from their magic bytes and decides
// which identified formats are hidden from the findings stream.
//
// Sniffing only runs for files that already scored above the entropy
// threshold. A compressed archive or media file can come close to 8 bits
// per byte, but unlike an encrypted container it starts with a recognizable
// signature.
package sniff

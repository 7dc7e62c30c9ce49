// Package fingerprint derives the identifiers a gallery is tracked by.
//
// Identity is content-derived: the SHA-1 of the first and last content file
// hashes plus the file count. It survives renames and moves that keep file
// order and content. The mtime fingerprint is a cheaper hash over the
// modification time and size of a few files; a change in it means identity
// must be recomputed, nothing more.
//
// Ordering uses locale-aware natural sorting (golang.org/x/text/collate with
// numeric collation) over names with known filler files removed.
package fingerprint

// Package database provides the SQLite store behind the gallery library.
//
// It holds two tables:
//   - galleries: one row per gallery (identity, kind, location, mtime
//     fingerprint, thumbnail reference, read statistics, dead flag)
//   - metadata: one row per gallery facet, a named JSON blob
//
// All access goes through Session, which wraps a transaction with
// commit-on-success and rollback-on-error semantics. Sessions opened with
// acquire=true additionally hold a process-wide write lock for their whole
// duration. Rows are mapped with sqlx; the database runs in WAL mode.
package database

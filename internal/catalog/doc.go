// Package catalog is a local mirror of the external catalog.
//
// The mirror is a separate SQLite file holding catalog records keyed by gid.
// Title queries use an FTS5 index when the driver was built with it
// (go build -tags 'fts5') and fall back to LIKE matching otherwise; both
// paths return the same kind of matches, only speed differs.
//
// The mirror is filled with Import from a JSON array of metadata API
// records, or with Upsert as records are fetched.
package catalog

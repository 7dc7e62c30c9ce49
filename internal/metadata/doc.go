// Package metadata holds the per-gallery metadata facets and the manager
// that resolves values across them.
//
// A facet is one independently persisted JSON blob with a fixed name:
//
//	cmetadata       user-entered custom metadata
//	gmetadata       external catalog record (gid, token)
//	chaikametadata  alternate catalog record (archive id)
//
// Resolved values (title, rating, category, tags) take the first non-empty
// value scanning facets in Priority order, so custom edits override catalog
// data. Blobs are encoded with github.com/goccy/go-json.
package metadata

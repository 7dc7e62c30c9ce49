// Command gallery-viewer indexes folders and archives of images as
// galleries, keeps their metadata in SQLite and serves them over HTTP.
//
// # Commands
//
//   - serve: load the library, watch the folders and serve the API
//   - scan [paths...]: reload and scan once, optionally validating identities
//   - reload: load stored galleries only
//   - dedupe: remove duplicate galleries (--dry-run lists them)
//   - match: search catalog metadata (--id, --force)
//   - thumbnails: generate missing thumbnails and prune orphans
//   - list: print the library as a table
//   - mirror import: load catalog records into the local mirror
//
// Every command reads the YAML file given by --config or $GALLERY_CONFIG,
// then GALLERY_ environment overrides. Only one process may use a data
// directory at a time.
//
// # Shutdown
//
// serve stops on SIGINT or SIGTERM: the HTTP server drains for up to 30
// seconds, background workers finish their current batch and the stores are
// closed last.
package main

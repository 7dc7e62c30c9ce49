// Package startup handles configuration loading and startup/shutdown
// logging.
//
// # Configuration
//
// [LoadConfig] layers three sources, later ones winning:
//
//  1. Built-in defaults
//  2. An optional YAML file (the path argument, or $GALLERY_CONFIG)
//  3. Environment variables prefixed GALLERY_, with "__" between levels
//
// For example:
//
//	data_dir: /var/lib/gallery-viewer
//	delete_mode: trash
//	library:
//	  folders:
//	    - path: /srv/manga
//	      auto_metadata: true
//	remote:
//	  member_id: "12345"
//	  pass_hash: 0123abcd
//
//	GALLERY_HTTP__ADDR=0.0.0.0:8080 gallery-viewer serve
//	GALLERY_LIBRARY__FOLDERS=/srv/manga,/srv/doujin gallery-viewer scan
//
// The merged configuration is validated with go-playground/validator and
// the data directory layout is derived from data_dir:
//
//	galleries.db   gallery store
//	catalog.db     catalog mirror
//	thumbs/        thumbnails
//	trash/         deleted galleries when delete_mode is trash
//	tmp/           archive extraction
//	.lock          single-process lock
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogStartup], [LogDatabaseInit], [LogIndexerInit], [LogHTTPRoutes],
// [LogServerStarted] and the shutdown helpers keep console output
// consistent across commands.
package startup

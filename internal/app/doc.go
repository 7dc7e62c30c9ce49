/*
Package app wires the subsystems of one gallery library together and exposes
the control operations used by the HTTP API and the command line.

New takes an exclusive lock on the data directory, opens the store and the
optional catalog mirror and connects the pipeline:

	indexer ──built──▶ reconcile ──checked──▶ matcher
	                                    └──────▶ thumbnails

Nothing runs in the background until Run is called. Run starts the intake
queues, queues a full reload and scan and, when enabled, watches the library
folders for changes. One-shot callers such as the CLI use Load, Match and
Dedupe instead, which run in the calling goroutine.

Remote metadata search is enabled only when catalog credentials are
configured; without them only the local mirror is searched.
*/
package app

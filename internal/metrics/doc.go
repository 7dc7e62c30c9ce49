// Package metrics provides Prometheus instrumentation for the gallery viewer.
//
// All metrics are prefixed with "gallery_viewer_" and registered through
// promauto at package initialization.
//
// # Metric Categories
//
//   - HTTP: request counts, durations and in-flight requests
//   - Database: query counts and durations per operation, session outcomes
//   - Library: live galleries per kind, event stream subscribers
//   - Scan: runs, durations, candidates and construction failures
//   - Worker pools: tasks per pool and status, task duration, active workers
//   - Reconciliation and duplicates: outcomes and removals
//   - Metadata matching: attempts per phase, remote gate traffic and sleeps
//   - Thumbnails: generations and pruning
//   - Filesystem: stale handle retries and watcher events
//
// InitializeMetrics pre-creates the label combinations so that dashboards see
// every series from the first scrape. Collector periodically refreshes gauges
// from a StatsProvider.
package metrics

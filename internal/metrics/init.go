package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, kind := range []string{"folder", "zip", "rar"} {
		GalleriesTotal.WithLabelValues(kind)
	}

	for _, mode := range []string{"reload", "scan"} {
		ScanRunsTotal.WithLabelValues(mode)
		ScanDuration.WithLabelValues(mode)
		ScanCandidatesTotal.WithLabelValues(mode)
	}

	for _, kind := range []string{"unreadable", "no_content", "assertion", "other"} {
		ConstructionErrorsTotal.WithLabelValues(kind)
	}

	for _, pool := range []string{"construct", "thumbnail"} {
		WorkerPoolTasksTotal.WithLabelValues(pool, "success")
		WorkerPoolTasksTotal.WithLabelValues(pool, "error")
		WorkerPoolTasksTotal.WithLabelValues(pool, "panic")
		WorkerPoolTaskDuration.WithLabelValues(pool)
		WorkerPoolActiveWorkers.WithLabelValues(pool)
	}

	for _, result := range []string{"unchanged", "touched", "identity_changed", "error"} {
		ReconcileTotal.WithLabelValues(result)
	}

	for _, phase := range []string{"mirror", "remote", "alternate", "api"} {
		for _, result := range []string{"matched", "ambiguous", "none", "error"} {
			MatchAttemptsTotal.WithLabelValues(phase, result)
		}
	}

	for _, service := range []string{"ex", "chaika"} {
		RemoteRequestsTotal.WithLabelValues(service, "ok")
		RemoteRequestsTotal.WithLabelValues(service, "retry")
		RemoteRequestsTotal.WithLabelValues(service, "fatal")
		RemoteGateSleepSeconds.WithLabelValues(service)
		RemoteBreakerState.WithLabelValues(service)
	}

	for _, status := range []string{"success", "error", "cached"} {
		ThumbnailGenerationsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"stat", "readdir"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}

	for _, op := range []string{"create", "write", "remove", "rename"} {
		WatcherEventsTotal.WithLabelValues(op)
	}

	for _, op := range []string{"initialize_schema", "insert_gallery", "update_gallery", "delete_gallery",
		"query_galleries", "find_dead_gallery", "mark_dead", "insert_facet", "update_facet", "delete_facet",
		"query_facets", "begin_transaction"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}
}

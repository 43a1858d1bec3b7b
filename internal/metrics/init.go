package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(classes []string) {
	volumes := []string{"source", "cache", "ledger", "unknown"}
	fsOps := []string{"stat", "open", "read", "write"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}

	for _, format := range []string{"jpeg", "png", "gif", "bmp", "webp", "tiff", "unknown"} {
		ThumbnailImageDecodeByFormat.WithLabelValues(format)
	}

	for _, phase := range []string{"decode", "resize", "encode", "store"} {
		ThumbnailGenerationDurationDetailed.WithLabelValues(phase)
	}

	for _, class := range classes {
		for _, result := range []string{"hit", "miss", "stale", "corrupt"} {
			ThumbnailCacheLookups.WithLabelValues(class, result)
		}
		for _, status := range []string{"success", "error_decode", "error_source", "error_store"} {
			ThumbnailGenerationsTotal.WithLabelValues(class, status)
		}
		ThumbnailGenerationDuration.WithLabelValues(class)
		ThumbnailStoreErrors.WithLabelValues(class)
		ThumbnailCacheSize.WithLabelValues(class)
		ThumbnailCacheCount.WithLabelValues(class)
	}

	for _, status := range []string{"cached", "generated", "failed"} {
		PregenFiles.WithLabelValues(status)
	}
	for _, result := range []string{"ok", "failed"} {
		PregenRunsTotal.WithLabelValues(result)
	}

	for _, result := range []string{"image", "skipped"} {
		ScannerFilesScanned.WithLabelValues(result)
	}

	for _, status := range []string{"success", "error"} {
		BackgroundSetTotal.WithLabelValues(status)
	}

	for _, op := range []string{"initialize_schema", "record_failure", "known_failure",
		"clear_failure", "list_failures", "count_failures", "record_run", "list_runs"} {
		LedgerQueryTotal.WithLabelValues(op, "success")
		LedgerQueryTotal.WithLabelValues(op, "error")
		LedgerQueryDuration.WithLabelValues(op)
	}
}

// Package metrics provides Prometheus instrumentation for the background
// picker.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "background_picker_". InitializeMetrics pre-populates
// label combinations so dashboards see every series from the first scrape.
//
// # Metric Categories
//
// ## Thumbnail Metrics
//
//   - ThumbnailCacheLookups: lookups by size class and result (hit/miss/stale/corrupt)
//   - ThumbnailGenerationsTotal: renders by size class and status
//   - ThumbnailGenerationDuration: end-to-end render+store time by class
//   - ThumbnailGenerationDurationDetailed: time per phase (decode/resize/encode/store)
//   - ThumbnailImageDecodeByFormat: decoded sources by sniffed format
//   - ThumbnailCoalescedTotal: requests that joined an in-flight render
//   - ThumbnailCacheCount, ThumbnailCacheSize: per-class cache contents, updated by Collector
//
// ## Scanner and Watcher Metrics
//
//   - ScannerFilesScanned, ScannerErrors, ScannerRunDuration
//   - ScannerWatcherEventsTotal, ScannerWatcherErrors, ScannerWatchedDirectories
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by NewFilesystemObserver,
// labeled by volume ("source", "cache", or "unknown"). Slow operations are
// logged at debug level and the first stale handle per volume is a warning:
//   - FilesystemOperationDuration, FilesystemOperationErrors
//   - FilesystemRetryAttempts, FilesystemRetrySuccess, FilesystemRetryFailures
//   - FilesystemStaleErrors
//
// ## Other
//
//   - HTTP request metrics recorded by the middleware package
//   - Ledger query metrics recorded by the ledger package
//   - Pregeneration run metrics recorded by the pregen package
//   - Memory backpressure metrics recorded by the memory package
//   - BackgroundSetTotal, AppInfo
package metrics

// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads defaults from environment variables and lets GNU-style
// command-line flags override them:
//
//   - -d, --directory (BACKGROUND_DIR): directory to scan (default: .)
//   - -t, --thumbnail-size (THUMBNAIL_SIZE): thumbnail edge in pixels, 1-1024 (default: 150)
//   - -c, --command (BACKGROUND_COMMAND): background command (default: feh --bg-max)
//   - -s, --selected-file (SELECTED_FILE): last applied image memo (default: selected-background.txt)
//   - --debug (DEBUG): debug logging
//   - --pregenerate: fill the cache and exit
//   - --cache-dir (THUMBNAIL_CACHE_DIR): thumbnail cache root (default: $XDG_CACHE_HOME/thumbnails)
//   - --ledger (LEDGER_PATH), --no-ledger (NO_LEDGER): failure ledger location
//   - -w, --workers: render workers (THUMBNAIL_WORKERS is read by package workers)
//   - --vips (USE_VIPS), --max-pixels (MAX_IMAGE_PIXELS), --skip-hidden (SKIP_HIDDEN)
//   - --listen (LISTEN_ADDR), --watch (WATCH), --rescan-interval (RESCAN_INTERVAL),
//     --stream-timeout (STREAM_TIMEOUT),
//     --log-health-checks (LOG_HEALTH_CHECKS): interactive mode
//
// Configuration problems are reported as [*ConfigError] before any scanning
// starts.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Lifecycle Logging
//
//   - [PrintBanner]: Banner and system information
//   - [LogVipsInit]: libvips availability
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated]: Graceful shutdown start
//   - [LogShutdownComplete]: Shutdown completion
package startup

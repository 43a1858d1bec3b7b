// Package main provides the entry point for the background picker.
//
// The picker scans a directory of wallpapers, keeps thumbnails for them in
// the shared freedesktop thumbnail cache, and serves a small web page for
// browsing folders and applying a background through an external command.
//
// # Modes
//
// Serve mode (the default) starts an HTTP server on --listen:
//
//  1. Memory Configuration: sets GOMEMLIMIT from MEMORY_LIMIT if present
//  2. Configuration Loading: flags override environment variables
//  3. Component Initialization:
//     - Failure Ledger: SQLite database remembering undecodable files
//     - Thumbnail Orchestrator: render worker pool with request coalescing
//     - Memory Monitor: pauses rendering under memory pressure
//     - Directory Watcher: fsnotify watch plus periodic full rescans
//     - Metrics Collector: cache size and ledger gauges
//  4. HTTP Server Setup: routes, middleware, graceful shutdown on SIGINT/SIGTERM
//
// Pregenerate mode (--pregenerate) fills the cache for the whole directory,
// prints a summary and exits. The exit status is 0 when every image has a
// cached thumbnail and 1 otherwise. Configuration errors exit with 2.
//
// # Environment Variables
//
//   - BACKGROUND_DIR: directory to scan (default: current directory)
//   - THUMBNAIL_SIZE: thumbnail edge in pixels, mapped to a size class (default: 150)
//   - BACKGROUND_COMMAND: command applying a background (default: feh --bg-max)
//   - SELECTED_FILE: file remembering the last selection
//   - THUMBNAIL_CACHE_DIR: cache root (default: $XDG_CACHE_HOME/thumbnails)
//   - LEDGER_PATH, NO_LEDGER: failure ledger location or disable it
//   - THUMBNAIL_WORKERS: render worker count
//   - USE_VIPS, MAX_IMAGE_PIXELS, SKIP_HIDDEN: decoding and scanning
//   - LISTEN_ADDR, WATCH, RESCAN_INTERVAL, STREAM_TIMEOUT, LOG_HEALTH_CHECKS: serve mode
//   - LOG_LEVEL, DEBUG: logging verbosity
//   - MEMORY_LIMIT, GOMEMLIMIT: memory limits
//
// # Related Packages
//
//   - [background-picker/internal/orchestrator]: thumbnail request scheduling
//   - [background-picker/internal/thumbcache]: freedesktop cache layout and metadata
//   - [background-picker/internal/media]: scanning and rendering
//   - [background-picker/internal/handlers]: HTTP API
//   - [background-picker/internal/pregen]: batch pregeneration
//   - [background-picker/internal/startup]: configuration and startup logging
package main

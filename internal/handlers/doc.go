// Package handlers provides the HTTP API of the background picker.
//
// It includes handlers for:
//   - The folder tree of the scanned background directory
//   - Streaming thumbnail generation progress for a folder as NDJSON
//   - Serving cached thumbnails with ETag revalidation
//   - Selecting a background and reading back the current selection
//   - Health, version, stats and Prometheus metrics
package handlers

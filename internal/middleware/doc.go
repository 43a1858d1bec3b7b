// Package middleware provides the HTTP middleware wrapped around the picker API.
//
// Requests are logged in W3C Extended Log Format through the logging package,
// counted and timed in Prometheus, and JSON or NDJSON bodies are gzip
// compressed when the client accepts it. The compressing writer forwards
// Flush so streamed thumbnail progress still reaches the browser line by line.
package middleware

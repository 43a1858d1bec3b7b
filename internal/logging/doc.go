// Package logging provides a simple leveled logging interface for the
// background picker.
//
// It supports the following log levels:
//   - DEBUG: Per-image cache and generation decisions
//   - INFO: Startup, scan and generation summaries
//   - WARN: Skipped directories, undecodable images, failed cache writes
//   - ERROR: Error conditions
//   - FATAL: Configuration errors that terminate the process
//
// The initial level comes from the DEBUG or LOG_LEVEL environment variables
// and can be overridden at startup with SetLevel (the --debug flag).
package logging

// Package ledger records source images that could not be decoded, so that
// later runs skip them until the file changes, and keeps a short history of
// batch runs.
//
// The ledger is a SQLite database opened in WAL mode. A failure is keyed by
// the source's canonical URI and remembered together with the modification
// time observed when decoding failed; any other modification time means the
// file has changed and deserves another attempt.
package ledger

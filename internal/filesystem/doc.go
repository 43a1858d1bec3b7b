/*
Package filesystem provides resilient filesystem operations for the source
tree and the thumbnail cache.

# Retry

StatWithRetry, OpenWithRetry and ReadFileWithRetry wrap the os calls with
exponential backoff for NFS stale file handle errors (ESTALE). Any other
error is returned immediately:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Defaults are 3 retries, starting at 50ms and capped at 500ms.

# Atomic writes

WriteFileAtomic writes data to a uniquely named temporary file in the
destination directory, syncs it, applies the requested permissions and
renames it over the destination. Readers observe either the previous file or
the complete new one. Concurrent writers of the same destination never share
a temporary file; the last rename wins.

# Metrics

Operations report to an Observer installed with SetObserver. Paths are
labeled with a volume name ("source", "cache", "ledger") resolved by the
VolumeResolver installed with SetDefaultVolumeResolver.
*/
package filesystem

package thumbcache

import "fmt"

// CacheWriteError reports a thumbnail that could not be persisted. The
// rendered entry is still valid in memory.
type CacheWriteError struct {
	Path string
	Err  error
}

func (e *CacheWriteError) Error() string {
	return fmt.Sprintf("write thumbnail %s: %v", e.Path, e.Err)
}

func (e *CacheWriteError) Unwrap() error {
	return e.Err
}

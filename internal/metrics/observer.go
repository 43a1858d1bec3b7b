package metrics

import (
	"sync"
	"time"

	"background-picker/internal/filesystem"
	"background-picker/internal/logging"
)

// DefaultSlowOperation is the duration above which a single filesystem
// operation is logged at debug level.
const DefaultSlowOperation = 2 * time.Second

type filesystemObserver struct {
	slow float64

	// Stale handles are warned about once per volume; after that only the
	// counter moves.
	mu          sync.Mutex
	staleWarned map[string]bool
}

// NewFilesystemObserver returns a filesystem.Observer that feeds the
// filesystem metrics. Operations slower than slow are logged at debug
// level; zero disables that log.
func NewFilesystemObserver(slow time.Duration) filesystem.Observer {
	return &filesystemObserver{
		slow:        slow.Seconds(),
		staleWarned: make(map[string]bool),
	}
}

func (o *filesystemObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
	}
	if o.slow > 0 && durationSeconds > o.slow {
		logging.Debug("Slow %s on %s volume: %.2fs", operation, volume, durationSeconds)
	}
}

func (o *filesystemObserver) ObserveRetryAttempt(retryOp, volume string) {
	FilesystemRetryAttempts.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetrySuccess(retryOp, volume string) {
	FilesystemRetrySuccess.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryFailure(retryOp, volume string) {
	FilesystemRetryFailures.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveStaleError(retryOp, volume string) {
	FilesystemStaleErrors.WithLabelValues(retryOp, volume).Inc()

	o.mu.Lock()
	first := !o.staleWarned[volume]
	o.staleWarned[volume] = true
	o.mu.Unlock()
	if first {
		logging.Warn("Stale file handle on %s volume during %s; network share may have been remounted", volume, retryOp)
	}
}

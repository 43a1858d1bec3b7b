package media

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"background-picker/internal/filesystem"
	"background-picker/internal/logging"
	"background-picker/internal/mediatypes"
	"background-picker/internal/metrics"
)

// ScannerOptions configures a Scanner.
type ScannerOptions struct {
	// SkipHidden skips files and directories whose names begin with a dot.
	SkipHidden bool
	// OnError receives every directory that could not be read. The default
	// logs a warning.
	OnError func(*ScanError)
	Retry   filesystem.RetryConfig
}

// Scanner enumerates image files under a root directory.
type Scanner struct {
	root string
	opts ScannerOptions
}

// NewScanner returns a scanner for root. A relative root is made absolute.
func NewScanner(root string, opts ScannerOptions) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if opts.OnError == nil {
		opts.OnError = func(e *ScanError) {
			logging.Warn("Skipping unreadable directory: %v", e)
		}
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialBackoff == 0 {
		opts.Retry = filesystem.DefaultRetryConfig()
	}
	return &Scanner{root: abs, opts: opts}, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan returns the images under the root, depth first in name order. Each
// range over the sequence walks the tree again. Directory symlinks are
// followed, but a directory reached twice through different paths is only
// walked the first time. The walk stops early when ctx is done.
func (s *Scanner) Scan(ctx context.Context) iter.Seq[mediatypes.SourceImage] {
	return func(yield func(mediatypes.SourceImage) bool) {
		start := time.Now()
		w := walk{
			s:       s,
			ctx:     ctx,
			yield:   yield,
			visited: make(map[fileID]struct{}),
		}
		w.dir(s.root)
		metrics.ScannerRunDuration.Observe(time.Since(start).Seconds())
		logging.Debug("Scanned %s: %d images, %d directories in %v",
			s.root, w.images, len(w.visited), time.Since(start))
	}
}

type walk struct {
	s       *Scanner
	ctx     context.Context
	yield   func(mediatypes.SourceImage) bool
	visited map[fileID]struct{}
	images  int
}

// dir walks one directory. It returns false once the consumer stops or the
// context ends.
func (w *walk) dir(path string) bool {
	if w.ctx.Err() != nil {
		return false
	}

	info, err := filesystem.StatWithRetry(path, w.s.opts.Retry)
	if err != nil {
		w.fail(path, err)
		return true
	}
	id := identify(path, info)
	if _, seen := w.visited[id]; seen {
		logging.Debug("Already visited %s, not descending again", path)
		return true
	}
	w.visited[id] = struct{}{}

	// ReadDir returns what it could read alongside the error.
	entries, err := os.ReadDir(path)
	if err != nil {
		w.fail(path, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if w.s.opts.SkipHidden && strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(path, name)

		mode := entry.Type()
		var fi os.FileInfo
		if mode&os.ModeSymlink != 0 {
			fi, err = os.Stat(full)
			if err != nil {
				logging.Debug("Skipping broken symlink %s: %v", full, err)
				metrics.ScannerFilesScanned.WithLabelValues("skipped").Inc()
				continue
			}
			mode = fi.Mode().Type()
		}

		if mode.IsDir() {
			if !w.dir(full) {
				return false
			}
			continue
		}

		format := mediatypes.FormatFromExtension(name)
		if !mode.IsRegular() || format == mediatypes.FormatUnknown {
			metrics.ScannerFilesScanned.WithLabelValues("skipped").Inc()
			continue
		}

		if fi == nil {
			if fi, err = entry.Info(); err != nil {
				logging.Debug("Skipping %s: %v", full, err)
				continue
			}
		}

		rel, err := filepath.Rel(w.s.root, full)
		if err != nil {
			rel = name
		}

		metrics.ScannerFilesScanned.WithLabelValues("image").Inc()
		w.images++
		if !w.yield(mediatypes.SourceImage{
			Path:    full,
			RelPath: rel,
			ModTime: mediatypes.ModTimeSeconds(fi.ModTime()),
			Size:    fi.Size(),
			Format:  format,
		}) {
			return false
		}
	}
	return true
}

func (w *walk) fail(path string, err error) {
	metrics.ScannerErrors.Inc()
	w.s.opts.OnError(&ScanError{Path: path, Err: err})
}

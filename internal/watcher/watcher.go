// Package watcher follows changes under the scan root while the server runs.
//
// Created and modified image files are collected and handed over in batches
// once the directory has been quiet for the debounce delay. Removals, renames
// and new directories only invalidate the folder tree, which is reported as
// a rescan request. A periodic full rescan catches anything the kernel
// dropped, such as events on network filesystems.
package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"background-picker/internal/logging"
	"background-picker/internal/mediatypes"
	"background-picker/internal/metrics"
)

const defaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the tree must be quiet before changes are
	// reported. 0 means 500ms.
	Debounce time.Duration
	// RescanInterval triggers a full rescan periodically. 0 disables it.
	RescanInterval time.Duration
	SkipHidden     bool
}

// Handlers receive the watcher's findings. Either may be nil. They run on
// the watcher's goroutines and should not block for long.
type Handlers struct {
	// OnChange receives image files that were created or written, sorted.
	OnChange func(paths []string)
	// OnRescan is called when the folder structure may have changed.
	OnRescan func()
}

// Watcher watches a directory tree with fsnotify.
type Watcher struct {
	root     string
	opts     Options
	handlers Handlers
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	rescan  bool
	timer   *time.Timer
	stopped bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher for root. Nothing is watched until Start.
func New(root string, opts Options, handlers Handlers) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     filepath.Clean(root),
		opts:     opts,
		handlers: handlers,
		fsw:      fsw,
		pending:  make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}, nil
}

// Start adds every directory under the root and begins processing events.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	logging.Info("Watching %s (%d directories)", w.root, w.Watched())

	w.wg.Add(1)
	go w.loop()

	if w.opts.RescanInterval > 0 {
		w.wg.Add(1)
		go w.periodicRescan()
	}
	return nil
}

// Stop ends watching and waits for the event loop. Pending changes are
// discarded. Stop may be called more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		close(w.stopChan)
		if err := w.fsw.Close(); err != nil {
			logging.Warn("Failed to close file watcher: %v", err)
		}
		w.wg.Wait()
	})
}

// Watched returns the number of directories being watched.
func (w *Watcher) Watched() int {
	return len(w.fsw.WatchList())
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			metrics.ScannerWatcherErrors.Inc()
			logging.Warn("File watcher error: %v", err)
			// Overflow means events were lost.
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.schedule("", true)
			}

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if w.opts.SkipHidden && strings.HasPrefix(filepath.Base(name), ".") {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		metrics.ScannerWatcherEventsTotal.WithLabelValues("create").Inc()
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := w.addTree(name); err != nil {
				logging.Warn("Failed to watch new directory %s: %v", name, err)
			}
			w.schedule("", true)
			return
		}
		if mediatypes.IsImageFile(name) {
			// New files also change the folder listing.
			w.schedule(name, true)
		}

	case event.Has(fsnotify.Write):
		metrics.ScannerWatcherEventsTotal.WithLabelValues("write").Inc()
		if mediatypes.IsImageFile(name) {
			w.schedule(name, false)
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		metrics.ScannerWatcherEventsTotal.WithLabelValues("remove").Inc()
		// Watches on removed directories are dropped by fsnotify itself.
		w.forget(name)
		metrics.ScannerWatchedDirectories.Set(float64(w.Watched()))
		w.schedule("", true)

	default:
		metrics.ScannerWatcherEventsTotal.WithLabelValues("other").Inc()
	}
}

// schedule records a change and (re)arms the debounce timer.
func (w *Watcher) schedule(path string, rescan bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if path != "" {
		w.pending[path] = struct{}{}
	}
	w.rescan = w.rescan || rescan

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.flush)
}

// forget drops a pending path that disappeared before the flush.
func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	rescan := w.rescan
	w.rescan = false
	// Stop waits for handlers that are already running.
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	slices.Sort(paths)
	logging.Debug("Watcher flush: %d changed images, rescan=%v", len(paths), rescan)

	if rescan && w.handlers.OnRescan != nil {
		w.handlers.OnRescan()
	}
	if len(paths) > 0 && w.handlers.OnChange != nil {
		w.handlers.OnChange(paths)
	}
}

func (w *Watcher) periodicRescan() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic rescan triggered")
			if w.handlers.OnRescan != nil {
				w.handlers.OnRescan()
			}
		case <-w.stopChan:
			return
		}
	}
}

// addTree watches dir and every directory below it. Unreadable
// subdirectories are logged and skipped.
func (w *Watcher) addTree(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Cannot watch %s: %v", path, err)
			metrics.ScannerErrors.Inc()
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			logging.Warn("Cannot watch %s: %v", path, err)
			metrics.ScannerWatcherErrors.Inc()
			return nil
		}
		return nil
	})

	metrics.ScannerWatchedDirectories.Set(float64(w.Watched()))
	return err
}

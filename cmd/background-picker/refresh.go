package main

import (
	"context"
	"slices"
	"sync"

	"background-picker/internal/handlers"
	"background-picker/internal/ledger"
	"background-picker/internal/logging"
	"background-picker/internal/metrics"
	"background-picker/internal/thumbcache"
)

// refresher serializes tree rescans requested by the watcher and warms the
// thumbnail cache for changed files. Requests that arrive while a rescan is
// running collapse into one follow-up rescan.
type refresher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	h       *handlers.Handlers
	thumbs  handlers.Thumbnailer
	class   thumbcache.SizeClass
	pending chan struct{}
	wg      sync.WaitGroup
}

func newRefresher(ctx context.Context, h *handlers.Handlers, thumbs handlers.Thumbnailer, class thumbcache.SizeClass) *refresher {
	ctx, cancel := context.WithCancel(ctx)
	r := &refresher{
		ctx:     ctx,
		cancel:  cancel,
		h:       h,
		thumbs:  thumbs,
		class:   class,
		pending: make(chan struct{}, 1),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *refresher) request() {
	select {
	case r.pending <- struct{}{}:
	default:
	}
}

func (r *refresher) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.pending:
			tree := r.h.Refresh(r.ctx)
			if tree != nil {
				logging.Debug("Folder tree refreshed: %d images", tree.Len())
			}
		}
	}
}

// warm generates thumbnails for changed files in the background so the
// browser finds them cached.
func (r *refresher) warm(paths []string) {
	if r.ctx.Err() != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for res := range r.thumbs.Ensure(r.ctx, slices.Values(paths), r.class) {
			if err := res.Error(); err != nil {
				logging.Warn("Thumbnail for changed file %s: %v", res.Path, err)
			}
		}
	}()
}

// stop cancels pending work and waits for it to exit. Call it after the
// watcher has stopped.
func (r *refresher) stop() {
	r.cancel()
	r.wg.Wait()
}

// cacheStatsAdapter feeds the metrics collector from the cache directory
// and the failure ledger.
type cacheStatsAdapter struct {
	store  *thumbcache.Store
	ledger *ledger.Ledger
}

func (a *cacheStatsAdapter) GetStats() metrics.Stats {
	var stats metrics.Stats
	for _, class := range thumbcache.Classes {
		count, size, err := a.store.Stats(class)
		if err != nil {
			logging.Debug("Cache stats for %s: %v", class.Name, err)
			continue
		}
		stats.Classes = append(stats.Classes, metrics.ClassStats{Class: class.Name, Count: count, Bytes: size})
	}
	if a.ledger != nil {
		if n, err := a.ledger.CountFailures(context.Background()); err == nil {
			stats.KnownFailures = n
		}
	}
	return stats
}

package metrics

import (
	"context"
	"sync"
	"time"

	"background-picker/internal/logging"
)

// StatsProvider reports the current on-disk cache contents.
type StatsProvider interface {
	GetStats() Stats
}

// ClassStats describes the on-disk contents of one size class directory.
type ClassStats struct {
	Class string
	Count int
	Bytes int64
}

// Stats is one snapshot of the cache and failure ledger.
type Stats struct {
	Classes       []ClassStats
	KnownFailures int
}

func (s Stats) total() (count int, bytes int64) {
	for _, cs := range s.Classes {
		count += cs.Count
		bytes += cs.Bytes
	}
	return count, bytes
}

// Collector refreshes the cache gauges on a fixed interval. Walking class
// directories is too slow to do on every scrape.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	lastCount    int
	lastFailures int
}

// NewCollector creates a collector. It does nothing until Start.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider:  provider,
		interval:  interval,
		cancel:    func() {},
		lastCount: -1,
	}
}

// Start collects once immediately and then every interval until ctx is
// canceled or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop ends collection and waits for an in-progress walk to finish. It is
// safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}

func (c *Collector) run(ctx context.Context) {
	defer c.wg.Done()

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	stats := c.provider.GetStats()
	for _, cs := range stats.Classes {
		ThumbnailCacheCount.WithLabelValues(cs.Class).Set(float64(cs.Count))
		ThumbnailCacheSize.WithLabelValues(cs.Class).Set(float64(cs.Bytes))
	}
	LedgerFailuresRecorded.Set(float64(stats.KnownFailures))

	count, bytes := stats.total()
	if count != c.lastCount || stats.KnownFailures != c.lastFailures {
		logging.Debug("Cache now holds %d thumbnails (%d bytes), %d known failures", count, bytes, stats.KnownFailures)
		c.lastCount, c.lastFailures = count, stats.KnownFailures
	}
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"background-picker/internal/filesystem"
	"background-picker/internal/ledger"
	"background-picker/internal/logging"
	"background-picker/internal/media"
	"background-picker/internal/mediatypes"
	"background-picker/internal/metrics"
	"background-picker/internal/thumbcache"
	"background-picker/internal/workers"
)

// Cache is the thumbnail store the orchestrator reads and fills.
type Cache interface {
	Lookup(key thumbcache.Key, class thumbcache.SizeClass) (*thumbcache.Entry, bool)
	IsFresh(entry *thumbcache.Entry, src mediatypes.SourceImage) bool
	Encode(entry *thumbcache.Entry) ([]byte, error)
	Store(key thumbcache.Key, class thumbcache.SizeClass, entry *thumbcache.Entry) error
}

// Renderer produces a thumbnail raster fitting a bound x bound square.
type Renderer interface {
	Render(ctx context.Context, path string, bound int) (*media.Rendered, error)
}

// Pauser holds back rendering, typically under memory pressure.
type Pauser interface {
	WaitIfPaused(ctx context.Context) error
}

// FailureLedger remembers sources that could not be decoded.
type FailureLedger interface {
	KnownFailure(ctx context.Context, uri string, mtime int64) (bool, error)
	RecordFailure(ctx context.Context, f ledger.Failure) error
	ClearFailure(ctx context.Context, uri string) error
}

// Options configures an Orchestrator.
type Options struct {
	// Workers is the number of render workers. 0 uses workers.Resolve.
	Workers int
	// LookupWorkers is the number of lookup workers. 0 uses workers.ForIO.
	LookupWorkers int
	// QueueSize bounds the render queue. 0 means twice Workers.
	QueueSize int
	// Pauser, if set, is consulted before every render. Waiting ends when
	// the caller cancels or the orchestrator closes.
	Pauser Pauser
	// Ledger, if set, records permanent decode failures and skips sources
	// that failed before and have not changed.
	Ledger FailureLedger
	Retry  filesystem.RetryConfig
}

// batch is the state of one Ensure call.
type batch struct {
	ctx   context.Context
	class thumbcache.SizeClass
	out   chan Result
	wg    sync.WaitGroup
}

type lookupJob struct {
	batch *batch
	path  string
}

// request is a thumbnail that has to be generated: the source was resolved
// and the cache had nothing fresh for it.
type request struct {
	batch *batch
	path  string
	src   mediatypes.SourceImage
	key   thumbcache.Key
	uri   string
}

// produced is the shared outcome of one render.
type produced struct {
	entry    *thumbcache.Entry
	hit      bool
	storeErr error
}

// Orchestrator resolves paths to thumbnails. It is safe for concurrent use;
// any number of Ensure calls may be active at once and share the worker
// pools.
type Orchestrator struct {
	cache    Cache
	renderer Renderer
	opts     Options

	lookups chan lookupJob
	renders chan *request
	group   singleflight.Group

	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}

	requested     atomic.Int64
	hits          atomic.Int64
	generated     atomic.Int64
	failed        atomic.Int64
	coalesced     atomic.Int64
	storeFailures atomic.Int64
	renderCount   atomic.Int64
}

// New creates an orchestrator. Workers start on Start or on the first
// Ensure.
func New(cache Cache, renderer Renderer, opts Options) *Orchestrator {
	opts.Workers = workers.Resolve(opts.Workers, 0)
	if opts.LookupWorkers <= 0 {
		opts.LookupWorkers = workers.ForIO(0)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 2 * opts.Workers
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialBackoff == 0 {
		opts.Retry = filesystem.DefaultRetryConfig()
	}

	return &Orchestrator{
		cache:    cache,
		renderer: renderer,
		opts:     opts,
		// Unbuffered so that nothing is stranded in the channel on Close.
		lookups: make(chan lookupJob),
		renders: make(chan *request, opts.QueueSize),
		closed:  make(chan struct{}),
	}
}

// Workers returns the render pool size.
func (o *Orchestrator) Workers() int {
	return o.opts.Workers
}

// Start launches the worker pools. Calling it more than once is harmless.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		logging.Debug("Starting orchestrator: %d lookup workers, %d render workers, queue %d",
			o.opts.LookupWorkers, o.opts.Workers, o.opts.QueueSize)

		for i := 0; i < o.opts.LookupWorkers; i++ {
			o.wg.Add(1)
			go o.lookupWorker()
		}
		for i := 0; i < o.opts.Workers; i++ {
			o.wg.Add(1)
			go o.renderWorker()
		}
	})
}

// Close stops the workers and waits for them. Renders already underway
// finish first; queued requests and later Ensure calls are reported with
// ErrClosed.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.closed)
		o.wg.Wait()

		// Lookup workers are gone, so nothing else is sent on renders.
		for {
			select {
			case req := <-o.renders:
				o.deliver(req.batch, Result{Path: req.path, Class: req.batch.class, Outcome: OutcomeFailed, Err: ErrClosed})
			default:
				return
			}
		}
	})
}

// Stats returns a snapshot of the cumulative counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Requested:     o.requested.Load(),
		Hits:          o.hits.Load(),
		Generated:     o.generated.Load(),
		Failed:        o.failed.Load(),
		Coalesced:     o.coalesced.Load(),
		StoreFailures: o.storeFailures.Load(),
		Renders:       o.renderCount.Load(),
	}
}

// Ensure makes sure every path has a fresh thumbnail in class and streams
// one Result per path. The channel is closed after the last result.
//
// The caller must drain the channel or cancel ctx. After cancellation,
// pending results are dropped and the channel closes once in-flight work
// has been accounted for.
func (o *Orchestrator) Ensure(ctx context.Context, paths iter.Seq[string], class thumbcache.SizeClass) <-chan Result {
	o.Start()

	b := &batch{
		ctx:   ctx,
		class: class,
		out:   make(chan Result, o.opts.Workers),
	}

	go func() {
		defer close(b.out)
		defer b.wg.Wait()

		for path := range paths {
			o.requested.Add(1)
			b.wg.Add(1)
			select {
			case o.lookups <- lookupJob{batch: b, path: path}:
			case <-ctx.Done():
				b.wg.Done()
				return
			case <-o.closed:
				o.deliver(b, Result{Path: path, Class: class, Outcome: OutcomeFailed, Err: ErrClosed})
				return
			}
		}
	}()

	return b.out
}

// EnsurePaths is Ensure for a fixed set of paths, collecting the results.
func (o *Orchestrator) EnsurePaths(ctx context.Context, class thumbcache.SizeClass, paths ...string) []Result {
	results := make([]Result, 0, len(paths))
	for r := range o.Ensure(ctx, func(yield func(string) bool) {
		for _, p := range paths {
			if !yield(p) {
				return
			}
		}
	}, class) {
		results = append(results, r)
	}
	return results
}

// deliver sends r to the batch's consumer and marks the path done. Results
// for cancelled batches are dropped.
func (o *Orchestrator) deliver(b *batch, r Result) {
	defer b.wg.Done()

	switch r.Outcome {
	case OutcomeHit:
		o.hits.Add(1)
	case OutcomeGenerated:
		o.generated.Add(1)
	default:
		o.failed.Add(1)
	}
	if r.Coalesced {
		o.coalesced.Add(1)
	}

	select {
	case b.out <- r:
	case <-b.ctx.Done():
	}
}

func (o *Orchestrator) lookupWorker() {
	defer o.wg.Done()

	for {
		select {
		case job := <-o.lookups:
			o.lookup(job)
		case <-o.closed:
			return
		}
	}
}

func (o *Orchestrator) renderWorker() {
	defer o.wg.Done()

	for {
		select {
		case req := <-o.renders:
			o.generate(req)
		case <-o.closed:
			return
		}
	}
}

// lookup resolves one path and either reports a fresh hit or queues a
// render.
func (o *Orchestrator) lookup(job lookupJob) {
	b := job.batch
	fail := func(err error) {
		o.deliver(b, Result{Path: job.path, Class: b.class, Outcome: OutcomeFailed, Err: err})
	}

	if err := b.ctx.Err(); err != nil {
		fail(err)
		return
	}

	src, err := o.resolve(job.path)
	if err != nil {
		logging.Warn("Skipping %s: %v", job.path, err)
		metrics.ThumbnailGenerationsTotal.WithLabelValues(b.class.Name, "error_source").Inc()
		fail(err)
		return
	}

	uri, err := thumbcache.URI(src.Path)
	if err != nil {
		fail(err)
		return
	}
	key := thumbcache.DeriveURI(uri)

	if entry, ok := o.cache.Lookup(key, b.class); ok {
		if o.cache.IsFresh(entry, src) {
			metrics.ThumbnailCacheLookups.WithLabelValues(b.class.Name, "hit").Inc()
			o.deliver(b, Result{Path: job.path, Class: b.class, Entry: entry, Outcome: OutcomeHit})
			return
		}
		logging.Debug("Thumbnail for %s is stale (cached mtime %d, source mtime %d)", src.Path, entry.MTime, src.ModTime)
		metrics.ThumbnailCacheLookups.WithLabelValues(b.class.Name, "stale").Inc()
	} else {
		metrics.ThumbnailCacheLookups.WithLabelValues(b.class.Name, "miss").Inc()
	}

	if o.opts.Ledger != nil {
		known, err := o.opts.Ledger.KnownFailure(b.ctx, uri, src.ModTime)
		if err != nil {
			logging.Warn("Failure ledger lookup for %s failed: %v", src.Path, err)
		} else if known {
			logging.Debug("Skipping %s: failed to decode before and unchanged since", src.Path)
			metrics.ThumbnailKnownFailureSkips.Inc()
			fail(&media.DecodeError{Path: src.Path, Format: src.Format, Err: ErrKnownFailure})
			return
		}
	}

	req := &request{batch: b, path: job.path, src: src, key: key, uri: uri}
	select {
	case o.renders <- req:
	case <-b.ctx.Done():
		fail(b.ctx.Err())
	case <-o.closed:
		fail(ErrClosed)
	}
}

// resolve stats path and describes it as a source image.
func (o *Orchestrator) resolve(path string) (mediatypes.SourceImage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return mediatypes.SourceImage{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := filesystem.StatWithRetry(abs, o.opts.Retry)
	if err != nil {
		return mediatypes.SourceImage{}, err
	}
	if !info.Mode().IsRegular() {
		return mediatypes.SourceImage{}, fmt.Errorf("%s: %w", abs, media.ErrNotRegularFile)
	}

	return mediatypes.SourceImage{
		Path:    abs,
		ModTime: mediatypes.ModTimeSeconds(info.ModTime()),
		Size:    info.Size(),
		Format:  mediatypes.FormatFromExtension(abs),
	}, nil
}

// generate renders req, sharing the work with concurrent requests for the
// same class and key.
func (o *Orchestrator) generate(req *request) {
	b := req.batch
	if err := b.ctx.Err(); err != nil {
		o.deliver(b, Result{Path: req.path, Class: b.class, Outcome: OutcomeFailed, Err: err})
		return
	}

	if err := o.waitIfPaused(b.ctx); err != nil {
		o.deliver(b, Result{Path: req.path, Class: b.class, Outcome: OutcomeFailed, Err: err})
		return
	}

	led := false
	v, err, _ := o.group.Do(b.class.Name+"/"+req.key.String(), func() (any, error) {
		led = true
		// The render is shared, so one caller going away must not abort it.
		return o.produce(context.WithoutCancel(b.ctx), req)
	})

	coalesced := !led
	if coalesced {
		metrics.ThumbnailCoalescedTotal.Inc()
	}

	if err != nil {
		o.deliver(b, Result{Path: req.path, Class: b.class, Outcome: OutcomeFailed, Err: err, Coalesced: coalesced})
		return
	}

	p := v.(*produced)
	outcome := OutcomeGenerated
	if p.hit {
		outcome = OutcomeHit
	}
	o.deliver(b, Result{
		Path:      req.path,
		Class:     b.class,
		Entry:     p.entry,
		Outcome:   outcome,
		StoreErr:  p.storeErr,
		Coalesced: coalesced,
	})
}

// waitIfPaused holds a render worker back while the Pauser says so. The wait
// ends early when the caller goes away or the orchestrator is closed.
func (o *Orchestrator) waitIfPaused(ctx context.Context) error {
	if o.opts.Pauser == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := o.opts.Pauser.WaitIfPaused(ctx)
	select {
	case <-o.closed:
		if err != nil {
			return ErrClosed
		}
	default:
	}
	return err
}

// produce does the work of one shared render: re-check, decode, encode and
// store.
func (o *Orchestrator) produce(ctx context.Context, req *request) (*produced, error) {
	class := req.batch.class

	// A render for the same key may have finished since the lookup.
	if entry, ok := o.cache.Lookup(req.key, class); ok && o.cache.IsFresh(entry, req.src) {
		return &produced{entry: entry, hit: true}, nil
	}

	start := time.Now()
	metrics.ThumbnailGenerationsInFlight.Inc()
	defer metrics.ThumbnailGenerationsInFlight.Dec()
	o.renderCount.Add(1)

	rendered, err := o.renderer.Render(ctx, req.src.Path, class.Pixels)
	if err != nil {
		o.recordDecodeFailure(ctx, req, err)
		return nil, err
	}

	src := rendered.Source
	mimeType := mediatypes.GetMimeType(src.Format)
	entry := &thumbcache.Entry{
		Key:          req.key,
		Class:        class,
		URI:          req.uri,
		MTime:        src.ModTime,
		Size:         src.Size,
		MimeType:     mimeType,
		SourceWidth:  rendered.Width,
		SourceHeight: rendered.Height,
		Image:        rendered.Image,
	}

	data, err := o.cache.Encode(entry)
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(class.Name, "error_encode").Inc()
		return nil, fmt.Errorf("encode thumbnail for %s: %w", req.src.Path, err)
	}
	entry.Data = data

	if o.opts.Ledger != nil {
		if err := o.opts.Ledger.ClearFailure(ctx, req.uri); err != nil {
			logging.Debug("Failed to clear ledger entry for %s: %v", req.src.Path, err)
		}
	}

	p := &produced{entry: entry}
	if err := o.cache.Store(req.key, class, entry); err != nil {
		// Reported once here; every waiter still gets the entry.
		logging.Warn("Failed to store thumbnail for %s: %v", req.src.Path, err)
		o.storeFailures.Add(1)
		metrics.ThumbnailStoreErrors.WithLabelValues(class.Name).Inc()
		metrics.ThumbnailGenerationsTotal.WithLabelValues(class.Name, "error_store").Inc()
		p.storeErr = err
	} else {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(class.Name, "success").Inc()
	}
	metrics.ThumbnailGenerationDuration.WithLabelValues(class.Name).Observe(time.Since(start).Seconds())

	return p, nil
}

// recordDecodeFailure counts a failed render and, when the failure lies in
// the file itself, remembers it in the ledger.
func (o *Orchestrator) recordDecodeFailure(ctx context.Context, req *request, err error) {
	class := req.batch.class
	logging.Warn("Failed to render %s: %v", req.src.Path, err)

	var decodeErr *media.DecodeError
	if !errors.As(err, &decodeErr) || !decodeErr.Permanent() {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(class.Name, "error_source").Inc()
		return
	}
	metrics.ThumbnailGenerationsTotal.WithLabelValues(class.Name, "error_decode").Inc()

	if o.opts.Ledger == nil {
		return
	}
	f := ledger.Failure{
		URI:    req.uri,
		MTime:  req.src.ModTime,
		Path:   req.src.Path,
		Format: string(decodeErr.Format),
		Reason: decodeErr.Err.Error(),
	}
	if err := o.opts.Ledger.RecordFailure(ctx, f); err != nil {
		logging.Warn("Failed to record decode failure for %s: %v", req.src.Path, err)
	}
}

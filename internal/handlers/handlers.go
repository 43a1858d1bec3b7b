package handlers

import (
	"context"
	"iter"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"background-picker/internal/foldertree"
	"background-picker/internal/ledger"
	"background-picker/internal/logging"
	"background-picker/internal/mediatypes"
	"background-picker/internal/orchestrator"
	"background-picker/internal/streaming"
	"background-picker/internal/thumbcache"
)

// Scanner enumerates the images below the background directory.
type Scanner interface {
	Root() string
	Scan(ctx context.Context) iter.Seq[mediatypes.SourceImage]
}

// Thumbnailer ensures cached thumbnails exist.
type Thumbnailer interface {
	Ensure(ctx context.Context, paths iter.Seq[string], class thumbcache.SizeClass) <-chan orchestrator.Result
	Stats() orchestrator.Stats
}

// Background applies and remembers the chosen wallpaper.
type Background interface {
	Apply(ctx context.Context, path string) error
	Selected() (string, error)
}

// MemoryStatus reports memory pressure on the render workers.
type MemoryStatus interface {
	GetUsage() float64
	IsPaused() bool
}

// FailureLister exposes the failure ledger. It is optional.
type FailureLister interface {
	ListFailures(ctx context.Context, limit int) ([]ledger.Failure, error)
	CountFailures(ctx context.Context) (int, error)
}

type Handlers struct {
	scanner    Scanner
	thumbs     Thumbnailer
	background Background
	failures   FailureLister
	class      thumbcache.SizeClass
	started    time.Time

	streamConfig streaming.Config
	memory       MemoryStatus

	mu       sync.RWMutex
	tree     *foldertree.Tree
	lastScan time.Time
	scanning bool
}

// New creates the handlers. failures may be nil when the ledger is disabled.
// The folder tree is empty until Refresh is called.
func New(scanner Scanner, thumbs Thumbnailer, bg Background, failures FailureLister, class thumbcache.SizeClass) *Handlers {
	return &Handlers{
		scanner:    scanner,
		thumbs:     thumbs,
		background: bg,
		failures:   failures,
		class:      class,
		started:    time.Now(),

		streamConfig: streaming.DefaultConfig(),
	}
}

// SetMemoryStatus adds render backpressure to GET /api/stats.
func (h *Handlers) SetMemoryStatus(m MemoryStatus) {
	h.memory = m
}

// SetStreamConfig overrides the per-line limits of the thumbnail stream.
func (h *Handlers) SetStreamConfig(cfg streaming.Config) {
	h.streamConfig = cfg
}

// Refresh rescans the background directory and swaps in the new tree.
func (h *Handlers) Refresh(ctx context.Context) *foldertree.Tree {
	h.mu.Lock()
	h.scanning = true
	h.mu.Unlock()

	start := time.Now()
	tree := foldertree.Build(h.scanner.Scan(ctx))

	h.mu.Lock()
	h.scanning = false
	if ctx.Err() == nil {
		h.tree = tree
		h.lastScan = time.Now()
	}
	current := h.tree
	h.mu.Unlock()

	if ctx.Err() == nil {
		logging.Debug("Scanned %s: %d images in %v", h.scanner.Root(), tree.Len(), time.Since(start))
	}
	return current
}

// Tree returns the current folder tree, or nil before the first scan.
func (h *Handlers) Tree() *foldertree.Tree {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tree
}

// lookupImage resolves a tree-relative path to a scanned image. Paths not in
// the tree are rejected, which also rules out traversal outside the root.
func (h *Handlers) lookupImage(rel string) (mediatypes.SourceImage, bool) {
	tree := h.Tree()
	if tree == nil || rel == "" {
		return mediatypes.SourceImage{}, false
	}
	folder, ok := tree.Folder(foldertree.FolderOf(rel))
	if !ok {
		return mediatypes.SourceImage{}, false
	}
	for _, img := range folder.Images {
		if filepath.ToSlash(img.RelPath) == rel {
			return img, true
		}
	}
	return mediatypes.SourceImage{}, false
}

// Register adds all API routes to r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tree", h.GetTree).Methods(http.MethodGet)
	api.HandleFunc("/rescan", h.Rescan).Methods(http.MethodPost)
	api.HandleFunc("/thumbnails", h.StreamThumbnails).Methods(http.MethodGet)
	api.HandleFunc("/thumbnail/{path:.*}", h.GetThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/select", h.SelectBackground).Methods(http.MethodPost)
	api.HandleFunc("/selected", h.GetSelected).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/failures", h.ListFailures).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(h.StaticHandler())
}

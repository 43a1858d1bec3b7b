package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"background-picker/internal/background"
	"background-picker/internal/ledger"
	"background-picker/internal/media"
	"background-picker/internal/orchestrator"
	"background-picker/internal/testutil"
	"background-picker/internal/thumbcache"
)

type fakeBackground struct {
	mu      sync.Mutex
	applied []string
	err     error
}

func (f *fakeBackground) Apply(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, path)
	return nil
}

func (f *fakeBackground) Selected() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.applied) == 0 {
		return "", nil
	}
	return f.applied[len(f.applied)-1], nil
}

type testServer struct {
	root   string
	h      *Handlers
	router *mux.Router
	bg     *fakeBackground
	ledger *ledger.Ledger
}

// newTestServer builds the full stack over a temporary background directory:
//
//	a.png
//	b.jpg
//	broken.jpg  (undecodable)
//	sub/c.png
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	root := t.TempDir()
	testutil.WriteImage(t, filepath.Join(root, "a.png"), 400, 300, "png")
	testutil.WriteImage(t, filepath.Join(root, "b.jpg"), 300, 400, "jpeg")
	testutil.WriteFile(t, filepath.Join(root, "broken.jpg"), testutil.CorruptJPEG())
	testutil.WriteImage(t, filepath.Join(root, "sub", "c.png"), 64, 64, "png")

	led, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open() error = %v", err)
	}
	t.Cleanup(func() { led.Close() })

	scanner, err := media.NewScanner(root, media.ScannerOptions{})
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	store := thumbcache.NewStore(filepath.Join(t.TempDir(), "thumbnails"))
	orch := orchestrator.New(store, media.NewRenderer(media.RendererOptions{}), orchestrator.Options{
		Workers: 2,
		Ledger:  led,
	})
	orch.Start()
	t.Cleanup(orch.Close)

	bg := &fakeBackground{}
	h := New(scanner, orch, bg, led, thumbcache.Normal)
	h.Refresh(context.Background())

	r := mux.NewRouter()
	h.Register(r)

	return &testServer{root: root, h: h, router: r, bg: bg, ledger: led}
}

func (s *testServer) do(t *testing.T, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestGetTree(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/tree", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/tree status = %d, body %s", w.Code, w.Body)
	}

	var resp TreeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Images != 4 {
		t.Errorf("Images = %d, want 4", resp.Images)
	}
	if resp.Folders != 2 {
		t.Errorf("Folders = %d, want 2", resp.Folders)
	}
	if resp.Tree == nil || len(resp.Tree.Images) != 3 || len(resp.Tree.Children) != 1 {
		t.Fatalf("unexpected tree shape: %+v", resp.Tree)
	}
	if resp.Tree.Children[0].Path != "sub" {
		t.Errorf("child path = %q, want sub", resp.Tree.Children[0].Path)
	}
}

func TestGetTreeBeforeScan(t *testing.T) {
	scanner, err := media.NewScanner(t.TempDir(), media.ScannerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	h := New(scanner, nil, &fakeBackground{}, nil, thumbcache.Normal)
	r := mux.NewRouter()
	h.Register(r)

	for _, target := range []string{"/api/tree", "/readyz", "/healthz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s before scan = %d, want 503", target, w.Code)
		}
	}
}

func readEvents(t *testing.T, body []byte) map[string]ThumbnailEvent {
	t.Helper()
	events := map[string]ThumbnailEvent{}
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var ev ThumbnailEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", sc.Text(), err)
		}
		if _, dup := events[ev.Path]; dup {
			t.Errorf("duplicate event for %s", ev.Path)
		}
		events[ev.Path] = ev
	}
	return events
}

func TestStreamThumbnails(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/thumbnails?folder=.", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := readEvents(t, w.Body.Bytes())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(events), events)
	}
	for _, name := range []string{"a.png", "b.jpg"} {
		if ev := events[name]; ev.Status != "generated" || ev.Error != "" {
			t.Errorf("%s: %+v, want generated", name, ev)
		}
	}
	if ev := events["a.png"]; ev.Width != 128 || ev.Height != 96 {
		t.Errorf("a.png dimensions = %dx%d, want 128x96", ev.Width, ev.Height)
	}
	if ev := events["broken.jpg"]; ev.Status != "failed" || ev.Error == "" {
		t.Errorf("broken.jpg: %+v, want failed with error", ev)
	}

	// Second pass is served from the cache.
	events = readEvents(t, s.do(t, http.MethodGet, "/api/thumbnails?folder=.", nil, nil).Body.Bytes())
	if ev := events["a.png"]; ev.Status != "hit" {
		t.Errorf("second pass a.png status = %q, want hit", ev.Status)
	}
}

func TestStreamThumbnailsRecursive(t *testing.T) {
	s := newTestServer(t)

	events := readEvents(t, s.do(t, http.MethodGet, "/api/thumbnails?folder=.&recursive=true", nil, nil).Body.Bytes())
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	if _, ok := events["sub/c.png"]; !ok {
		t.Error("missing sub/c.png")
	}

	events = readEvents(t, s.do(t, http.MethodGet, "/api/thumbnails?folder=sub", nil, nil).Body.Bytes())
	if len(events) != 1 {
		t.Errorf("sub folder: got %d events, want 1", len(events))
	}
}

func TestStreamThumbnailsUnknownFolder(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodGet, "/api/thumbnails?folder=nope", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetThumbnail(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/thumbnail/sub/c.png", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("body is not a PNG")
	}
	if got := w.Header().Get("X-Thumbnail-Status"); got != "generated" {
		t.Errorf("X-Thumbnail-Status = %q, want generated", got)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	w = s.do(t, http.MethodGet, "/api/thumbnail/sub/c.png", nil, http.Header{"If-None-Match": {etag}})
	if w.Code != http.StatusNotModified {
		t.Errorf("revalidation status = %d, want 304", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Error("304 response has a body")
	}
	if got := w.Header().Get("X-Thumbnail-Status"); got != "hit" {
		t.Errorf("X-Thumbnail-Status = %q, want hit", got)
	}
}

func TestGetThumbnailErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"not in tree", "/api/thumbnail/missing.png", http.StatusNotFound},
		{"folder", "/api/thumbnail/sub", http.StatusNotFound},
		{"undecodable", "/api/thumbnail/broken.jpg", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(t, http.MethodGet, tt.target, nil, nil); w.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.target, w.Code, tt.want)
			}
		})
	}

	for _, rel := range []string{"../a.png", "sub/../../a.png", "/a.png"} {
		if _, ok := s.h.lookupImage(rel); ok {
			t.Errorf("lookupImage(%q) resolved outside the tree", rel)
		}
	}
}

func TestListFailures(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/thumbnail/broken.jpg", nil, nil)

	w := s.do(t, http.MethodGet, "/api/failures", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var failures []ledger.Failure
	if err := json.Unmarshal(w.Body.Bytes(), &failures); err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || filepath.Base(failures[0].Path) != "broken.jpg" {
		t.Errorf("failures = %+v, want broken.jpg", failures)
	}

	if w := s.do(t, http.MethodGet, "/api/failures?limit=x", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}

	// A repeat request is answered from the ledger.
	w = s.do(t, http.MethodGet, "/api/thumbnail/broken.jpg", nil, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("repeat status = %d, want 422", w.Code)
	}
	if !strings.Contains(w.Body.String(), orchestrator.ErrKnownFailure.Error()) {
		t.Errorf("repeat body = %q, want known failure", w.Body.String())
	}
}

func TestSelectBackground(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/select", []byte(`{"path":"sub/c.png"}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	want := filepath.Join(s.root, "sub", "c.png")
	if len(s.bg.applied) != 1 || s.bg.applied[0] != want {
		t.Fatalf("applied = %v, want [%s]", s.bg.applied, want)
	}

	w = s.do(t, http.MethodGet, "/api/selected", nil, nil)
	var sel SelectionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &sel); err != nil {
		t.Fatal(err)
	}
	if sel.Path != "sub/c.png" || sel.Absolute != want {
		t.Errorf("selected = %+v", sel)
	}
}

func TestSelectBackgroundErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"not in tree", `{"path":"../outside.png"}`, nil, http.StatusNotFound},
		{"empty path", `{"path":""}`, nil, http.StatusNotFound},
		{"command fails", `{"path":"a.png"}`, &background.CommandError{Command: "false", Err: errors.New("exit status 1")}, http.StatusBadGateway},
		{"other error", `{"path":"a.png"}`, errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.bg.err = tt.err
			w := s.do(t, http.MethodPost, "/api/select", []byte(tt.body), nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestRescanPicksUpNewImages(t *testing.T) {
	s := newTestServer(t)
	testutil.WriteImage(t, filepath.Join(s.root, "new", "d.png"), 32, 32, "png")

	w := s.do(t, http.MethodPost, "/api/rescan", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp TreeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Images != 5 {
		t.Errorf("Images = %d, want 5", resp.Images)
	}
	if w := s.do(t, http.MethodGet, "/api/thumbnail/new/d.png", nil, nil); w.Code != http.StatusOK {
		t.Errorf("new image thumbnail status = %d", w.Code)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/thumbnails?folder=.", nil, nil)

	w := s.do(t, http.MethodGet, "/api/stats", nil, nil)
	var stats StatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Class != "normal" || stats.Pixels != 128 {
		t.Errorf("class = %s/%d", stats.Class, stats.Pixels)
	}
	if stats.Thumbnails.Generated != 2 || stats.Thumbnails.Failed != 1 {
		t.Errorf("thumbnail stats = %+v", stats.Thumbnails)
	}
	if stats.KnownFailures != 1 {
		t.Errorf("KnownFailures = %d, want 1", stats.KnownFailures)
	}
	if stats.Memory != nil {
		t.Errorf("Memory = %+v without a monitor", stats.Memory)
	}

	s.h.SetMemoryStatus(fakeMemory{usage: 0.95, paused: true})
	w = s.do(t, http.MethodGet, "/api/stats", nil, nil)
	stats = StatsResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Memory == nil || !stats.Memory.Paused || stats.Memory.Usage != 0.95 {
		t.Errorf("Memory = %+v", stats.Memory)
	}
}

type fakeMemory struct {
	usage  float64
	paused bool
}

func (m fakeMemory) GetUsage() float64 { return m.usage }
func (m fakeMemory) IsPaused() bool     { return m.paused }

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/livez", http.StatusOK},
		{http.MethodHead, "/livez", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			if w := s.do(t, tt.method, tt.target, nil, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	var health HealthResponse
	if err := json.Unmarshal(s.do(t, http.MethodGet, "/healthz", nil, nil).Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != statusHealthy || health.Images != 4 {
		t.Errorf("health = %+v", health)
	}
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`*`, true},
		{`"abd"`, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, `"abc"`); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

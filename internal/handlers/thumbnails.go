package handlers

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gorilla/mux"

	"background-picker/internal/foldertree"
	"background-picker/internal/logging"
	"background-picker/internal/media"
	"background-picker/internal/mediatypes"
	"background-picker/internal/orchestrator"
	"background-picker/internal/streaming"
)

// ThumbnailEvent is one NDJSON line of GET /api/thumbnails.
type ThumbnailEvent struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// StreamThumbnails ensures thumbnails for every image in ?folder= and writes
// one line per image as soon as it is ready. ?recursive=true includes
// subfolders. Lines arrive in completion order, not tree order.
func (h *Handlers) StreamThumbnails(w http.ResponseWriter, r *http.Request) {
	tree := h.Tree()
	if tree == nil {
		writeJSONError(w, "initial scan has not completed", http.StatusServiceUnavailable)
		return
	}

	folderPath := r.URL.Query().Get("folder")
	folder, ok := tree.Folder(folderPath)
	if !ok {
		writeJSONError(w, "folder not found", http.StatusNotFound)
		return
	}
	recursive, _ := strconv.ParseBool(r.URL.Query().Get("recursive"))

	images := collectImages(folder, recursive)
	relByPath := make(map[string]string, len(images))
	paths := make([]string, 0, len(images))
	for _, img := range images {
		relByPath[img.Path] = img.RelPath
		paths = append(paths, img.Path)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream := streaming.NewEventStream(ctx, w, h.streamConfig)
	defer stream.Close()

	for res := range h.thumbs.Ensure(ctx, slices.Values(paths), h.class) {
		ev := ThumbnailEvent{Path: relByPath[res.Path], Status: res.Outcome.String()}
		if err := res.Error(); err != nil {
			ev.Error = err.Error()
		}
		if res.Entry != nil {
			ev.Width, ev.Height = res.Entry.Bounds()
		}
		if err := stream.Send(ev); err != nil {
			logging.Debug("thumbnail stream for %q ended: %v", folderPath, err)
			return
		}
	}

	lines, bytesWritten, dur := stream.Stats()
	logging.Debug("thumbnail stream for %q: %d lines, %d bytes in %v", folderPath, lines, bytesWritten, dur)
}

func collectImages(folder *foldertree.Folder, recursive bool) []mediatypes.SourceImage {
	if !recursive {
		return folder.Images
	}
	var out []mediatypes.SourceImage
	var walk func(f *foldertree.Folder)
	walk = func(f *foldertree.Folder) {
		out = append(out, f.Images...)
		for _, c := range f.Children {
			walk(c)
		}
	}
	walk(folder)
	return out
}

// GetThumbnail serves the cached PNG for one image, generating it first if
// needed. The ETag is a hash of the PNG bytes so browsers revalidate cheaply
// and pick up regenerated thumbnails after the source changes.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	rel := mux.Vars(r)["path"]
	if rel == "" {
		http.Error(w, "Path is required", http.StatusBadRequest)
		return
	}

	img, ok := h.lookupImage(rel)
	if !ok {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	var res orchestrator.Result
	received := false
	for res = range h.thumbs.Ensure(r.Context(), slices.Values([]string{img.Path}), h.class) {
		received = true
	}
	if !received {
		// The client went away before the result arrived.
		return
	}

	if res.Outcome == orchestrator.OutcomeFailed || res.Entry == nil {
		err := res.Err
		if err == nil {
			err = errors.New("no thumbnail produced")
		}
		logging.Debug("Thumbnail for %s failed: %v", rel, err)
		http.Error(w, err.Error(), thumbnailErrorStatus(err))
		return
	}

	data := res.Entry.Data
	etag := `"` + strconv.FormatUint(xxhash.Sum64(data), 16) + `"`

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Thumbnail-Status", res.Outcome.String())

	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		logging.Debug("Thumbnail write for %s: %v", rel, err)
	}
}

func etagMatches(header, etag string) bool {
	for candidate := range strings.SplitSeq(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

func thumbnailErrorStatus(err error) int {
	var decodeErr *media.DecodeError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &decodeErr), errors.Is(err, orchestrator.ErrKnownFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"background-picker/internal/background"
	"background-picker/internal/logging"
)

// SelectRequest is the body of POST /api/select.
type SelectRequest struct {
	Path string `json:"path"`
}

// SelectionResponse reports the current background.
type SelectionResponse struct {
	Path     string `json:"path,omitempty"`
	Absolute string `json:"absolute,omitempty"`
}

// SelectBackground applies the image at the given tree-relative path.
func (h *Handlers) SelectBackground(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	img, ok := h.lookupImage(filepath.ToSlash(req.Path))
	if !ok {
		writeJSONError(w, "image not found", http.StatusNotFound)
		return
	}

	if err := h.background.Apply(r.Context(), img.Path); err != nil {
		logging.Error("Failed to set background %s: %v", img.Path, err)
		status := http.StatusInternalServerError
		var cmdErr *background.CommandError
		if errors.As(err, &cmdErr) {
			status = http.StatusBadGateway
		}
		writeJSONError(w, err.Error(), status)
		return
	}

	logging.Info("Background set to %s", img.RelPath)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, SelectionResponse{Path: img.RelPath, Absolute: img.Path})
}

// GetSelected returns the remembered background, if any.
func (h *Handlers) GetSelected(w http.ResponseWriter, _ *http.Request) {
	abs, err := h.background.Selected()
	if err != nil {
		writeJSONError(w, "failed to read selection", http.StatusInternalServerError)
		return
	}

	resp := SelectionResponse{Absolute: abs}
	if abs != "" {
		if rel, err := filepath.Rel(h.scanner.Root(), abs); err == nil && filepath.IsLocal(rel) {
			resp.Path = filepath.ToSlash(rel)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, resp)
}

package handlers

import (
	"net/http"
	"time"

	"background-picker/internal/foldertree"
)

// TreeResponse is the body of GET /api/tree.
type TreeResponse struct {
	Root     string             `json:"root"`
	Images   int                `json:"images"`
	Folders  int                `json:"folders"`
	Scanning bool               `json:"scanning"`
	LastScan string             `json:"lastScan,omitempty"`
	Tree     *foldertree.Folder `json:"tree"`
}

func (h *Handlers) treeResponse() TreeResponse {
	h.mu.RLock()
	tree, lastScan, scanning := h.tree, h.lastScan, h.scanning
	h.mu.RUnlock()

	resp := TreeResponse{Root: h.scanner.Root(), Scanning: scanning}
	if !lastScan.IsZero() {
		resp.LastScan = lastScan.Format(time.RFC3339)
	}
	if tree != nil {
		resp.Images = tree.Len()
		resp.Folders = len(tree.Folders())
		resp.Tree = tree.Root
	}
	return resp
}

// GetTree returns the folder hierarchy with the images in each folder.
func (h *Handlers) GetTree(w http.ResponseWriter, _ *http.Request) {
	resp := h.treeResponse()
	if resp.Tree == nil {
		writeJSONError(w, "initial scan has not completed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, resp)
}

// Rescan rebuilds the folder tree synchronously and returns it.
func (h *Handlers) Rescan(w http.ResponseWriter, r *http.Request) {
	h.Refresh(r.Context())
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.treeResponse())
}

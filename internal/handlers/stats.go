package handlers

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"background-picker/internal/ledger"
	"background-picker/internal/logging"
	"background-picker/internal/orchestrator"
)

const defaultFailureLimit = 100

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Class         string             `json:"class"`
	Pixels        int                `json:"pixels"`
	Images        int                `json:"images"`
	Folders       int                `json:"folders"`
	KnownFailures int                `json:"knownFailures"`
	Thumbnails    orchestrator.Stats `json:"thumbnails"`
	Memory        *MemoryStats       `json:"memory,omitempty"`
}

// MemoryStats reports render backpressure.
type MemoryStats struct {
	Usage  float64 `json:"usage"`
	Paused bool    `json:"paused"`
}

// MetricsHandler returns the Prometheus metrics handler
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// GetStats reports tree size and thumbnail counters since startup.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	tree := h.treeResponse()
	resp := StatsResponse{
		Class:      h.class.Name,
		Pixels:     h.class.Pixels,
		Images:     tree.Images,
		Folders:    tree.Folders,
		Thumbnails: h.thumbs.Stats(),
	}

	if h.memory != nil {
		resp.Memory = &MemoryStats{Usage: h.memory.GetUsage(), Paused: h.memory.IsPaused()}
	}

	if h.failures != nil {
		n, err := h.failures.CountFailures(r.Context())
		if err != nil {
			logging.Warn("Failed to count ledger failures: %v", err)
		}
		resp.KnownFailures = n
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, resp)
}

// ListFailures returns the most recent undecodable sources. ?limit= caps the
// list; 0 or a negative value returns everything.
func (h *Handlers) ListFailures(w http.ResponseWriter, r *http.Request) {
	if h.failures == nil {
		writeJSONError(w, "failure ledger disabled", http.StatusNotFound)
		return
	}

	limit := defaultFailureLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSONError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	failures, err := h.failures.ListFailures(r.Context(), limit)
	if err != nil {
		logging.Error("Failed to list ledger failures: %v", err)
		writeJSONError(w, "failed to list failures", http.StatusInternalServerError)
		return
	}
	if failures == nil {
		failures = []ledger.Failure{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, failures)
}

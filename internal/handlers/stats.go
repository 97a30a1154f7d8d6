package handlers

import (
	"net/http"

	"batch-renamer/internal/cache"
	"batch-renamer/internal/database"
	"batch-renamer/internal/thumbnail"
)

// StatsResponse combines store, tier and thumbnail statistics.
type StatsResponse struct {
	Database  database.Summary         `json:"database"`
	Tiers     []cache.Stats            `json:"tiers"`
	Artifacts *thumbnail.CacheStats    `json:"artifacts,omitempty"`
	Pipeline  *thumbnail.PipelineStats `json:"pipeline,omitempty"`
}

// GetStats returns row counts, file sizes and cache statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.db.Summary(r.Context())
	if err != nil {
		writeJSONError(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := StatsResponse{
		Database: summary,
		Tiers:    h.db.CacheStats(),
	}
	if h.artifacts != nil {
		s := h.artifacts.Stats()
		resp.Artifacts = &s
	}
	if h.pipeline != nil {
		s := h.pipeline.Stats()
		resp.Pipeline = &s
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, resp)
}

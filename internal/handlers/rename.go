package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"batch-renamer/internal/database"
	"batch-renamer/internal/logging"
)

// RenameRequest moves the records of From to To.
type RenameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RenameResponse reports whether From had a record to move.
type RenameResponse struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Renamed bool   `json:"renamed"`
}

// Rename carries the path record of a file renamed on disk, with its
// hashes and metadata, over to the new path, and drops artifacts of the old
// path.
func (h *Handlers) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSessionBody)).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	renamed, err := h.db.Rename(r.Context(), req.From, req.To)
	switch {
	case errors.Is(err, database.ErrInvalidPath):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case database.IsUnavailable(err):
		writeJSONError(w, "store unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		logging.Error("rename %s -> %s failed: %v", req.From, req.To, err)
		writeJSONError(w, "rename failed", http.StatusInternalServerError)
		return
	}

	if renamed && h.artifacts != nil {
		h.artifacts.Invalidate(r.Context(), req.From)
	}

	writeJSONStatus(w, http.StatusOK, RenameResponse{From: req.From, To: req.To, Renamed: renamed})
}

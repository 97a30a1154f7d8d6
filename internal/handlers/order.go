package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"batch-renamer/internal/database"
)

// OrderResponse is the manual thumbnail order of a folder.
type OrderResponse struct {
	Folder string   `json:"folder"`
	Paths  []string `json:"paths"`
	Manual bool     `json:"manual"`
}

// GetThumbnailOrder returns the manual order of {folder}, or an empty
// automatic order.
func (h *Handlers) GetThumbnailOrder(w http.ResponseWriter, r *http.Request) {
	folder := routePath(mux.Vars(r)["folder"])
	paths, ok := h.db.GetThumbnailOrder(r.Context(), folder)
	if paths == nil {
		paths = []string{}
	}
	writeJSONStatus(w, http.StatusOK, OrderResponse{Folder: folder, Paths: paths, Manual: ok})
}

// PutThumbnailOrder stores a JSON array of paths as the manual order of
// {folder}.
func (h *Handlers) PutThumbnailOrder(w http.ResponseWriter, r *http.Request) {
	folder := routePath(mux.Vars(r)["folder"])

	var paths []string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSessionBody)).Decode(&paths); err != nil {
		writeJSONError(w, "body must be a JSON array of paths", http.StatusBadRequest)
		return
	}
	if err := h.db.SetThumbnailOrder(r.Context(), folder, paths); err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, OrderResponse{Folder: folder, Paths: paths, Manual: true})
}

// ClearThumbnailOrder resets {folder} to automatic order.
func (h *Handlers) ClearThumbnailOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.db.ClearThumbnailOrder(r.Context(), routePath(mux.Vars(r)["folder"])); err != nil {
		writeOrderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrInvalidPath):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case database.IsUnavailable(err):
		writeJSONError(w, "store unavailable", http.StatusServiceUnavailable)
	default:
		writeJSONError(w, "failed to update thumbnail order", http.StatusInternalServerError)
	}
}

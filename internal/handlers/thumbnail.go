package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"

	"batch-renamer/internal/logging"
	"batch-renamer/internal/mediatypes"
	"batch-renamer/internal/thumbnail"
)

// Accepted ?size= range in pixels
const (
	minThumbnailSize = 16
	maxThumbnailSize = 2048
)

// GetThumbnail serves a JPEG thumbnail of the file at {path}. A cached
// artifact for the file's current version is served directly; otherwise a
// pipeline request is made and awaited. With ?wait=false the request is
// queued and 202 is returned with the request ID.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		writeJSONError(w, "thumbnails are disabled", http.StatusServiceUnavailable)
		return
	}

	path := routePath(mux.Vars(r)["path"])
	size := h.pipeline.Size()
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < minThumbnailSize || n > maxThumbnailSize {
			writeJSONError(w, "size must be an integer between 16 and 2048", http.StatusBadRequest)
			return
		}
		size = n
	}
	if kind := mediatypes.KindOf(path); !kind.Thumbnailable() {
		writeJSONError(w, "no thumbnails for "+string(kind)+" files", http.StatusUnsupportedMediaType)
		return
	}

	if img, ok := h.pipeline.Lookup(r.Context(), path, size); ok {
		writeThumbnail(w, img, "hit")
		return
	}

	handle := h.pipeline.Request(path, size)

	if r.URL.Query().Get("wait") == "false" {
		select {
		case <-handle.Done():
			// Failed synchronously (invalid path or stopping)
		default:
			writeJSONStatus(w, http.StatusAccepted, map[string]string{"id": handle.ID, "status": "queued"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.thumbnailTimeout)
	defer cancel()

	img, err := handle.Wait(ctx)
	if err != nil {
		writeThumbnailError(w, path, err)
		return
	}
	writeThumbnail(w, img, "generated")
}

func writeThumbnail(w http.ResponseWriter, img image.Image, source string) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		logging.Error("failed to encode thumbnail: %v", err)
		writeJSONError(w, "failed to encode thumbnail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Thumbnail-Source", source)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.Debug("thumbnail write aborted: %v", err)
	}
}

// thumbnailStatus maps a pipeline failure to an HTTP status.
func thumbnailStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}

	switch thumbnail.KindOf(err) {
	case thumbnail.FailureVanished:
		return http.StatusNotFound
	case thumbnail.FailureUnsupported:
		return http.StatusUnsupportedMediaType
	case thumbnail.FailureCorrupt:
		return http.StatusUnprocessableEntity
	case thumbnail.FailureCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeThumbnailError(w http.ResponseWriter, path string, err error) {
	status := thumbnailStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logging.Warn("thumbnail for %s failed: %v", path, err)
	} else {
		logging.Debug("thumbnail for %s failed: %v", path, err)
	}
	writeJSONError(w, err.Error(), status)
}

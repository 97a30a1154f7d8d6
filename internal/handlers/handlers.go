package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"batch-renamer/internal/database"
	"batch-renamer/internal/thumbnail"
)

// defaultThumbnailTimeout bounds how long a request waits for generation.
const defaultThumbnailTimeout = 30 * time.Second

// Handlers serves the API. Pipeline and artifacts are nil when thumbnails
// are disabled.
type Handlers struct {
	db        *database.Database
	pipeline  *thumbnail.Pipeline
	artifacts *thumbnail.ArtifactCache
	started   time.Time

	thumbnailTimeout time.Duration
}

// New creates the handler set.
func New(db *database.Database, pipeline *thumbnail.Pipeline, artifacts *thumbnail.ArtifactCache) *Handlers {
	return &Handlers{
		db:               db,
		pipeline:         pipeline,
		artifacts:        artifacts,
		started:          time.Now(),
		thumbnailTimeout: defaultThumbnailTimeout,
	}
}

// MetricsHandler returns the Prometheus metrics handler
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

package handlers

import (
	"net/http"
	"runtime"
	"time"

	"batch-renamer/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	SchemaVersion int    `json:"schemaVersion,omitempty"`
	Thumbnails    bool   `json:"thumbnails"`
	Error         string `json:"error,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports healthy when the durable store answers. A store that
// is closed or locked gives 503 so orchestrators stop routing traffic.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		Thumbnails:   h.pipeline != nil,
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	summary, err := h.db.Summary(r.Context())
	if err != nil {
		response.Status = statusDegraded
		response.Error = err.Error()
		writeJSONStatus(w, http.StatusServiceUnavailable, response)
		return
	}
	response.SchemaVersion = summary.SchemaVersion

	writeJSONStatus(w, http.StatusOK, response)
}

// LivenessCheck always returns 200 while the process serves requests.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router registers every route. The metrics endpoint is only mounted when
// metricsEnabled is set.
func (h *Handlers) Router(metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	if metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/thumbnail/{path:.*}", h.GetThumbnail).Methods(http.MethodGet)
	api.HandleFunc("/session/{key}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/session/{key}", h.PutSession).Methods(http.MethodPut)
	api.HandleFunc("/session/{key}", h.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/rename", h.Rename).Methods(http.MethodPost)
	api.HandleFunc("/thumbnail-order/{folder:.*}", h.GetThumbnailOrder).Methods(http.MethodGet)
	api.HandleFunc("/thumbnail-order/{folder:.*}", h.PutThumbnailOrder).Methods(http.MethodPut)
	api.HandleFunc("/thumbnail-order/{folder:.*}", h.ClearThumbnailOrder).Methods(http.MethodDelete)

	return r
}

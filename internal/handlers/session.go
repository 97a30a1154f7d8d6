package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"batch-renamer/internal/database"
	"batch-renamer/internal/logging"
)

// maxSessionBody caps PUT bodies for session values.
const maxSessionBody = 1 << 20

// SessionResponse is one session entry.
type SessionResponse struct {
	Key string `json:"key"`
	database.StateValue
}

// GetSession returns the stored value and type of {key}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	v, ok := h.db.State(r.Context(), key)
	if !ok {
		writeJSONError(w, "session key not found", http.StatusNotFound)
		return
	}
	writeJSONStatus(w, http.StatusOK, SessionResponse{Key: key, StateValue: v})
}

// PutSession stores {"value": ...} under {key}. JSON integers are stored as
// int, other numbers as float, strings and bools as such, and arrays or
// objects as JSON.
func (h *Handlers) PutSession(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var body struct {
		Value any `json:"value"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSessionBody))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if body.Value == nil {
		writeJSONError(w, "value is required", http.StatusBadRequest)
		return
	}

	if err := h.db.SetState(r.Context(), key, sessionValue(body.Value)); err != nil {
		if database.IsUnavailable(err) {
			writeJSONError(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		logging.Error("failed to store session key %s: %v", key, err)
		writeJSONError(w, "failed to store session value", http.StatusInternalServerError)
		return
	}

	v, _ := h.db.State(r.Context(), key)
	writeJSONStatus(w, http.StatusOK, SessionResponse{Key: key, StateValue: v})
}

// DeleteSession removes {key}.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteState(r.Context(), mux.Vars(r)["key"]); err != nil {
		writeJSONError(w, "failed to delete session value", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tenantgate/tenantgate/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// respondError maps store and engine errors onto the API's status taxonomy.
// Anything unrecognized is treated as a transient dependency failure: the
// body never carries a fabricated decision.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, store.ErrInvalidQuota):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, store.ErrKeyExpired):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "api key expired"})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "temporarily unavailable"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

package web

// errors.go maps handler errors onto the two wire shapes the API
// exposes: a 400 carrying the validation message verbatim, and a 500
// carrying a fixed generic message. Internal error details are logged
// server-side with the request ID and never reach the client.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/plumescan/emissions/internal/emissions"
	"github.com/plumescan/emissions/internal/logging"
)

// errorResponse is the JSON body for every error status.
type errorResponse struct {
	Error string `json:"error"`
}

// respondError classifies err and writes the matching error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *emissions.RequestError
	if errors.As(err, &reqErr) {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: reqErr.Error()})
		return
	}

	logging.FromContext(r.Context()).Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode failed", "error", err)
	}
}

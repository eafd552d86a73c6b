package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"cognosis/domain/core"
)

// errorResponse is the uniform error body
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] response encode failed: %v", err)
	}
}

// writeError maps domain errors onto HTTP status codes. Guard failures are
// conflicts, not faults: the session exists, the caller's move is illegal.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsNotFoundError(err):
		status = http.StatusNotFound
	case core.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrSessionExpired):
		status = http.StatusGone
	case core.IsGuardError(err):
		status = http.StatusConflict
	case errors.Is(err, core.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, core.ErrOracleUnavailable):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.Printf("[API] internal error: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeBody parses a JSON request body into dst
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return core.NewValidationError("body", err.Error())
	}
	return nil
}

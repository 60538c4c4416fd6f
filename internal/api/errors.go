package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/stripgate/internal/power"
)

// Error is the body of every non-2xx response. The single detail field
// keeps existing clients of the gateway working unchanged.
type Error struct {
	Detail string `json:"detail"`
}

// Fixed error details.
const (
	detailUnauthorized  = "Unauthorized"
	detailInvalidOutlet = "Invalid plug number"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, Error{Detail: detail})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, detail string) {
	writeError(w, http.StatusBadRequest, detail)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, detail string) {
	writeError(w, http.StatusNotFound, detail)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, detailUnauthorized)
}

// writeUnprocessable writes a 422 error response.
func writeUnprocessable(w http.ResponseWriter, detail string) {
	writeError(w, http.StatusUnprocessableEntity, detail)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, detail string) {
	writeError(w, http.StatusInternalServerError, detail)
}

// writeControllerError maps a controller error to its HTTP status. An
// out-of-range outlet is the caller's fault; everything else, device
// failures included, is a 500 carrying the error text.
func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, power.ErrInvalidOutlet):
		writeBadRequest(w, detailInvalidOutlet)
	default:
		writeInternalError(w, err.Error())
	}
}

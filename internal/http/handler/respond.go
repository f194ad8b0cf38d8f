package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"prep/internal/interview"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps the domain error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, interview.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, interview.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interview.ErrInvariant):
		return http.StatusConflict
	case errors.Is(err, interview.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := "server error"
	switch status {
	case http.StatusBadRequest:
		msg = "invalid input"
	case http.StatusNotFound:
		msg = "not found"
	case http.StatusConflict:
		msg = "conflict"
	case http.StatusServiceUnavailable:
		msg = "temporarily unavailable"
	}
	http.Error(w, msg, status)
}

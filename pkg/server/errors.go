package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/NicolasHaas/gochat/pkg/model"
)

// Error codes returned in the "error" field of JSON error bodies.
const (
	codeNotFound           = "NotFound"
	codeInvalidAttributes  = "InvalidAttributes"
	codeEndOfWorld         = "EndOfWorld"
	codeInternal           = "InternalError"
	codeInvalidCredentials = "InvalidCredentials"
	codeBanned             = "Banned"
	codeRateLimited        = "RateLimitExceeded"
	codeBadRequest         = "BadRequest"
)

// apiError is the JSON body of every error response.
type apiError struct {
	Error  string              `json:"error"`
	Errors map[string][]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, apiError{Error: code})
}

// writeStoreError maps a store or domain error to its HTTP response.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs model.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: codeInvalidAttributes, Errors: verrs})
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound)
	case errors.Is(err, model.ErrEndOfWorld):
		writeError(w, http.StatusNotAcceptable, codeEndOfWorld)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal)
	}
}

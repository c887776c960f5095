package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fara-hq/governor/pkg/governor"
)

// errorBody is the uniform error payload for every non-2xx response.
type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// writeError maps a coordinator error onto the wire: HTTP status plus a
// stable machine-readable code.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)

	if s.collector != nil {
		s.collector.RecordError(code)
	}
	if status >= 500 {
		s.logger.Error("request failed", "code", code, "error", err)
	}

	writeJSON(w, status, errorBody{Detail: err.Error(), Code: code})
}

func classifyError(err error) (int, string) {
	var (
		validation    *governor.ValidationError
		notExecutable *governor.NotExecutableError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR"
	case errors.Is(err, governor.ErrNotFound):
		return http.StatusNotFound, "ACTION_NOT_FOUND"
	case errors.Is(err, governor.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.As(err, &notExecutable):
		return http.StatusBadRequest, "ACTION_NOT_EXECUTABLE"
	case errors.Is(err, governor.ErrConflict):
		// Retries already happened inside the coordinator; exhaustion means
		// the store is too contended to serve the write right now.
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// badRequest writes a 400 for transport-level problems (unreadable body,
// malformed JSON) that never reach the coordinator.
func (s *Server) badRequest(w http.ResponseWriter, detail string) {
	if s.collector != nil {
		s.collector.RecordError("BAD_REQUEST")
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Detail: detail, Code: "BAD_REQUEST"})
}

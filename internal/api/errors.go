package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/boardflow-core/internal/automation"
	"github.com/nerrad567/boardflow-core/internal/board"
	"github.com/nerrad567/boardflow-core/internal/ordering"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeInternal   = "internal_error"
	ErrCodeValidation = "validation_error"
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

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError maps domain errors to responses. Anything unrecognised
// is logged by the caller and reported as a 500 with fallback as message.
func writeServiceError(w http.ResponseWriter, err error, fallback string) bool {
	switch {
	case errors.Is(err, automation.ErrRuleNotFound),
		errors.Is(err, board.ErrCardNotFound),
		errors.Is(err, board.ErrListNotFound),
		errors.Is(err, board.ErrBoardNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, automation.ErrValidation),
		errors.Is(err, automation.ErrInvalidCondition),
		errors.Is(err, automation.ErrUnsupportedFilterType),
		errors.Is(err, ordering.ErrInvalidPosition):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, automation.ErrRuleExists), errors.Is(err, board.ErrExists),
		errors.Is(err, board.ErrConcurrentMove):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeInternalError(w, fallback)
		return false
	}
	return true
}

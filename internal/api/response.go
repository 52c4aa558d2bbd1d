package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/orchestrator"
	"github.com/sqlpilot/sqlpilot/internal/project"
	"github.com/sqlpilot/sqlpilot/internal/vectorstore"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
// Encodes into a buffer first so headers are only sent after successful
// encoding, allowing a proper 500 if encoding fails.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		slog.Debug("failed to write response body", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps a domain error onto an HTTP status and error code.
// Internal errors are logged but never leaked to the client.
func writeDomainError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, project.ErrProjectNotFound),
		errors.Is(err, project.ErrChatNotFound),
		errors.Is(err, vectorstore.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, project.ErrEmptyName),
		errors.Is(err, vectorstore.ErrEmptyContent),
		errors.Is(err, vectorstore.ErrInvalidCategory),
		errors.Is(err, orchestrator.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

	case errors.Is(err, orchestrator.ErrChatMismatch):
		writeError(w, http.StatusConflict, "chat_mismatch", err.Error())

	case errors.Is(err, orchestrator.ErrNoHistory),
		errors.Is(err, orchestrator.ErrFeedbackDisabled):
		writeError(w, http.StatusConflict, "conflict", err.Error())

	case errors.Is(err, orchestrator.ErrGeneration),
		errors.Is(err, llm.ErrProvider):
		writeError(w, http.StatusBadGateway, "upstream_error", "generation failed")

	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeJSON decodes a request body into dst with a size cap.
// Returns false after writing a 400 response when decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return false
	}
	return true
}

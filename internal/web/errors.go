package web

// errors.go provides unified error response handling for the web layer.
//
// Every failure is:
//   - Logged with full technical details and the request ID (server-side)
//   - Returned as a user-friendly message with an action suggestion
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Status comes from apperror.StatusOf, the message from apperror.MapError
//  4. Technical error is logged with the request-scoped logger
//  5. The sanitized message is written as JSON

import (
	"net/http"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/logging"
)

// retryAfterSeconds is sent with 503 responses.
const retryAfterSeconds = "30"

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Error, Action) fields.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Action  string `json:"action,omitempty"`
}

// respondError logs the technical error server-side and writes a sanitized
// JSON error with the status that matches the error kind.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.StatusOf(err)
	userMsg := apperror.MapError(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
	} else {
		logger.Warn("request error", args...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	writeJSON(w, status, ErrorResponse{
		Success: false,
		Error:   userMsg.Message,
		Code:    userMsg.Code,
		Action:  userMsg.Action,
	})
}

// Package api provides the JSON response envelope and auxiliary handlers.
package api

import (
	"encoding/json"
	"net/http"
)

// Reason codes carried in error envelopes. Stable across releases; clients
// branch on these rather than on messages.
const (
	ReasonUnsupportedOperation = "unsupported_operation"
	ReasonInvalidArgument      = "invalid_argument"
	ReasonInvitationFailed     = "invitation_failed"
	ReasonDeleteFailed         = "delete_failed"
	ReasonToggleFailed         = "toggle_failed"
	ReasonDirectoryError       = "directory_error"
	ReasonMethodNotAllowed     = "method_not_allowed"
	ReasonUnauthenticated      = "unauthenticated"
	ReasonRateLimited          = "rate_limited"
	ReasonBadRequest           = "bad_request"
	ReasonInternalError        = "internal_error"
)

// Envelope is the uniform response shape for all API endpoints.
type Envelope struct {
	OK    bool         `json:"ok"`
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes one failure. Code mirrors the HTTP status.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// WriteSuccess writes a 200 success envelope with the given payload.
func WriteSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(Envelope{OK: true, Data: data})
}

// WriteError writes a failure envelope with the given status and reason.
func WriteError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{
		OK: false,
		Error: &ErrorDetail{
			Code:    status,
			Reason:  reason,
			Message: message,
		},
	})
}

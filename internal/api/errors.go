package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Error represents a structured error response.
type Error struct {
	Status      int    `json:"status"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
	Legal       string `json:"legal,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "service_unavailable"
	ErrCodeTimeout      = "timeout"
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

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, display.ErrInvalidID), errors.Is(err, display.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, display.ErrInvalidAttributeValue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, display.ErrDisplayNotFound):
		return http.StatusNotFound
	case errors.Is(err, display.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, display.ErrDeviceUnavailable), errors.Is(err, display.ErrTransientIO):
		return http.StatusServiceUnavailable
	case errors.Is(err, display.ErrExternalTool):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeDomainError writes err with its status, stable code and remediation.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := Error{
		Status:      status,
		Code:        display.ErrorCode(err),
		Message:     err.Error(),
		Remediation: display.Remediation(err),
	}
	if status == http.StatusGatewayTimeout {
		body.Code = ErrCodeTimeout
	}
	var invalid *display.InvalidValueError
	if errors.As(err, &invalid) {
		body.Legal = invalid.Range.String()
	}
	if status == http.StatusServiceUnavailable && errors.Is(err, display.ErrTransientIO) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

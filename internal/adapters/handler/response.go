// Package handler implements the HTTP surface of the chat server
// Following Hexagonal Architecture: Adapters translate HTTP to service calls
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/services"
)

// APIResponse is the envelope every JSON endpoint returns
// Same shape the chat backend answers with, so clients parse one format
type APIResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    interface{}         `json:"data"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// NewSuccessResponse wraps a payload
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: "Success",
		Data:    data,
	}
}

// NewErrorResponse creates a failed envelope
func NewErrorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

// statusFor maps service and gateway errors onto HTTP status codes
func statusFor(err error) int {
	var validationErr *domain.ValidationError
	var gatewayErr *domain.GatewayError
	var transportErr *domain.TransportError

	switch {
	case errors.As(err, &validationErr), errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrVisitNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrSendInFlight),
		errors.Is(err, domain.ErrNoSession),
		errors.Is(err, services.ErrLoginNotAllowed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &gatewayErr):
		if gatewayErr.Status >= 400 && gatewayErr.Status < 500 {
			return gatewayErr.Status
		}
		return http.StatusBadGateway
	case errors.As(err, &transportErr):
		if transportErr.Kind == domain.TransportTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse builds the failed envelope for err
// Validation and backend field errors are kept per field
func errorResponse(err error, message string, data interface{}) APIResponse {
	resp := NewErrorResponse(message)
	resp.Data = data

	var validationErr *domain.ValidationError
	var gatewayErr *domain.GatewayError
	switch {
	case errors.As(err, &validationErr):
		resp.Errors = map[string][]string{validationErr.Field: {validationErr.Message}}
	case errors.As(err, &gatewayErr) && len(gatewayErr.FieldErrors) > 0:
		resp.Errors = gatewayErr.FieldErrors
	}
	return resp
}

// decodeBody reads a JSON request body into dst
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

const maxBodyBytes = 64 << 10

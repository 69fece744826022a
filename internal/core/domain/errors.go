package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for the send gate and session handling
var (
	// ErrNoSession is returned when an operation needs a loaded session
	ErrNoSession = errors.New("no chat session loaded")

	// ErrSessionClosed is returned once the backend has closed the session
	ErrSessionClosed = errors.New("chat session is closed")

	// ErrSendInFlight is returned while another send is awaiting its reply
	ErrSendInFlight = errors.New("a message is already being sent")

	// ErrEmptyMessage is returned for blank input
	ErrEmptyMessage = errors.New("message is empty")

	// ErrUnauthorized indicates the bearer token is missing or expired (HTTP 401)
	ErrUnauthorized = errors.New("unauthorized")
)

// Default user-facing strings
const (
	DefaultErrorMessage   = "An error occurred. Please try again."
	NetworkErrorMessage   = "Network error. Please check your internet connection."
	TimeoutErrorMessage   = "Request timeout. Please try again."
	SessionStartFailedMsg = "Failed to start chat session. Please try again."
	SendFailedMessage     = "Your message could not be delivered. Please try again."
	SessionEndedNotice    = "This chat session has ended. Thank you for your time."
)

// ValidationError is a local input error caught before any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// GatewayError is a structured failure envelope (success=false)
type GatewayError struct {
	Status      int
	Message     string
	FieldErrors map[string][]string
}

// Error applies the message precedence: message, then field errors, then fallback
func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if flat := FlattenFieldErrors(e.FieldErrors); flat != "" {
		return flat
	}
	return DefaultErrorMessage
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 envelopes
func (e *GatewayError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == 401
}

// FlattenFieldErrors renders "Field: msg1, msg2. Field2: msg3"
// Fields are sorted so the output is stable
func FlattenFieldErrors(fieldErrors map[string][]string) string {
	if len(fieldErrors) == 0 {
		return ""
	}

	fields := make([]string, 0, len(fieldErrors))
	for field := range fieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs := fieldErrors[field]
		if len(msgs) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", capitalize(field), strings.Join(msgs, ", ")))
	}
	return strings.Join(parts, ". ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// TransportKind classifies failures with no structured response
type TransportKind string

const (
	TransportNetwork TransportKind = "network"
	TransportTimeout TransportKind = "timeout"
)

// TransportError wraps network failures and timeouts
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UserMessage converts any error into the string shown to the user
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if fallback == "" {
		fallback = DefaultErrorMessage
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}

	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Error()
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Kind == TransportTimeout {
			return TimeoutErrorMessage
		}
		return NetworkErrorMessage
	}

	switch {
	case errors.Is(err, ErrSessionClosed):
		return SessionEndedNotice
	case errors.Is(err, ErrSendInFlight):
		return "Please wait for the current reply."
	}

	return fallback
}

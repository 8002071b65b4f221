// Package errors provides the error handling system for the slide service.
// It holds the failure taxonomy shared by the pipeline, the stores and the
// HTTP layer, structured JSON error responses, request ID tracking, and
// logging through Uber's zap logger.
//
// Domain code wraps one of the sentinel errors declared in taxonomy.go:
//
//	return fmt.Errorf("%w: status %d", errors.ErrTransport, resp.StatusCode)
//
// and the HTTP layer turns any such chain into a ServiceError:
//
//	errors.WriteError(w, errors.FromError(requestID, err))
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the package-level logger used by the HTTP helpers.
// It is initialized to a production configuration and can be replaced with SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger replaces DefaultLogger. A nil logger is ignored.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType categorizes a ServiceError for clients.
type ErrorType string

const (
	// AuthError represents authentication and authorization failures
	AuthError ErrorType = "authentication_error"

	// ValidationError represents request validation failures
	ValidationError ErrorType = "validation_error"

	// InternalError represents unexpected internal failures
	InternalError ErrorType = "internal_error"

	// TransportError represents a failed call to the LLM provider
	TransportError ErrorType = "transport_error"

	// DecodeError represents an LLM response that did not match the expected shape
	DecodeError ErrorType = "decode_error"

	// NotFoundError represents a lookup of a missing or malformed id
	NotFoundError ErrorType = "not_found"

	// ConflictError represents a uniqueness violation such as a duplicate registration
	ConflictError ErrorType = "conflict"

	// OverloadedError represents a request rejected by the admission queue
	OverloadedError ErrorType = "overloaded"
)

// ServiceError is the structured error written to API clients. It keeps
// the underlying cause for logging while exposing only the public fields
// in JSON.
type ServiceError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	err error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ServiceError) Unwrap() error {
	return e.err
}

// Is matches another *ServiceError by type only.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WriteError writes err as a JSON response with its status code.
func WriteError(w http.ResponseWriter, err *ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	if encErr := json.NewEncoder(w).Encode(err); encErr != nil {
		DefaultLogger.Warn("failed to encode error response", zap.Error(encErr))
	}
}

// Error is a drop-in replacement for http.Error that writes an
// InternalError-typed ServiceError. The request ID is taken from the
// response headers when the RequestID middleware set it.
func Error(w http.ResponseWriter, message string, code int) {
	ErrorWithType(w, message, InternalError, code)
}

// ErrorWithType is like Error but lets the caller pick the error type.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	WriteError(w, &ServiceError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

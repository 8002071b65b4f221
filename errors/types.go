package errors

import (
	"net/http"
)

// NewError creates a ServiceError with full control over its fields.
// Prefer one of the specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "database connection failed", 500, "req_123", nil, dbErr)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *ServiceError {
	return &ServiceError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewAuthError creates an authentication error. Use it for bad
// credentials, missing or expired tokens.
//
// Example:
//
//	err := NewAuthError("req_123", "Invalid credentials", nil)
func NewAuthError(requestID, message string, err error) *ServiceError {
	return &ServiceError{
		Type:      AuthError,
		Message:   message,
		Code:      http.StatusUnauthorized,
		RequestID: requestID,
		err:       err,
		Details: map[string]interface{}{
			"suggestion": "Please check your authentication credentials",
		},
	}
}

// NewValidationError creates a validation error for malformed request
// bodies or field constraint violations.
//
// Example:
//
//	err := NewValidationError("req_123", "Invalid request", map[string]interface{}{
//	    "field": "rawText",
//	    "error": "required",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *ServiceError {
	return &ServiceError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewTransportError creates an error for a failed LLM provider call.
func NewTransportError(requestID, message string, err error) *ServiceError {
	return &ServiceError{
		Type:      TransportError,
		Message:   message,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewDecodeError creates an error for an LLM response that could not be
// decoded into the expected structure. The provider answered, but not
// usefully, so it maps to 502 like a transport failure.
func NewDecodeError(requestID, message string, err error) *ServiceError {
	return &ServiceError{
		Type:      DecodeError,
		Message:   message,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewNotFoundError creates an error for a missing session, history record or user.
func NewNotFoundError(requestID, message string, err error) *ServiceError {
	return &ServiceError{
		Type:      NotFoundError,
		Message:   message,
		Code:      http.StatusNotFound,
		RequestID: requestID,
		err:       err,
	}
}

// NewConflictError creates an error for a uniqueness violation.
func NewConflictError(requestID, message string, err error) *ServiceError {
	return &ServiceError{
		Type:      ConflictError,
		Message:   message,
		Code:      http.StatusConflict,
		RequestID: requestID,
		err:       err,
	}
}

// NewOverloadedError creates an error for a request turned away by the
// admission queue.
func NewOverloadedError(requestID string, err error) *ServiceError {
	return &ServiceError{
		Type:      OverloadedError,
		Message:   "Service is at capacity, try again shortly",
		Code:      http.StatusServiceUnavailable,
		RequestID: requestID,
		err:       err,
	}
}

// NewInternalError creates an internal server error for failures not
// covered by the other types: panics, storage errors, unexpected states.
//
// Example:
//
//	err := NewInternalError("req_123", dbErr)
func NewInternalError(requestID string, err error) *ServiceError {
	return &ServiceError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

package errors

import (
	"errors"
)

// RequestIDKey is the log field name used for request correlation.
const RequestIDKey = "request_id"

// ErrorResponse is the JSON shape clients receive for any failed request.
// ServiceError encodes to exactly this shape; the type exists so tests and
// clients can decode error bodies without depending on ServiceError.
type ErrorResponse struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// As is a wrapper around errors.As for better error type assertion
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

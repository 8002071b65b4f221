package errors

import (
	"errors"
)

// Sentinel errors forming the failure taxonomy. Domain packages wrap them
// with fmt.Errorf("%w: ...") so callers can classify a failure with Is.
var (
	// ErrTransport marks a network or provider failure inside the LLM gateway:
	// transport errors, non-2xx statuses and empty content lists.
	ErrTransport = errors.New("llm transport failure")

	// ErrDecode marks an LLM response whose extracted payload does not decode
	// into the structure a stage expects.
	ErrDecode = errors.New("llm response decode failure")

	// ErrNotFound marks a lookup of an id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness violation, e.g. a duplicate registration.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized marks bad credentials or an invalid token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrOverloaded marks a request rejected because the service is saturated.
	ErrOverloaded = errors.New("overloaded")
)

// Is is a wrapper around errors.Is so callers importing this package do not
// need the standard library package under another name.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// New is a wrapper around errors.New.
func New(text string) error {
	return errors.New(text)
}

// FromError converts an arbitrary error chain into a ServiceError,
// classifying it by the taxonomy sentinel it wraps. An error that already
// is a *ServiceError is returned with the request ID filled in.
func FromError(requestID string, err error) *ServiceError {
	var svcErr *ServiceError
	if As(err, &svcErr) {
		if svcErr.RequestID == "" {
			svcErr.RequestID = requestID
		}
		return svcErr
	}

	switch {
	case Is(err, ErrOverloaded):
		return NewOverloadedError(requestID, err)
	case Is(err, ErrTransport):
		return NewTransportError(requestID, "LLM provider request failed", err)
	case Is(err, ErrDecode):
		return NewDecodeError(requestID, "LLM response could not be interpreted", err)
	case Is(err, ErrNotFound):
		return NewNotFoundError(requestID, "Resource not found", err)
	case Is(err, ErrConflict):
		return NewConflictError(requestID, "Resource already exists", err)
	case Is(err, ErrUnauthorized):
		return NewAuthError(requestID, "Invalid credentials", err)
	default:
		return NewInternalError(requestID, err)
	}
}

package errors

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorHandler wraps an http.Handler and converts panics into an
// InternalError response.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := w.Header().Get("X-Request-ID")
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String(RequestIDKey, requestID),
					)
					WriteError(w, NewInternalError(requestID, nil))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// LogError logs an error with its context. Client errors (4xx) are logged
// at warn level, everything else at error level.
func LogError(logger *zap.Logger, err error, requestID string) {
	var svcErr *ServiceError
	if !As(err, &svcErr) {
		logger.Error("unexpected error",
			zap.Error(err),
			zap.String(RequestIDKey, requestID),
		)
		return
	}

	fields := []zap.Field{
		zap.String("error_type", string(svcErr.Type)),
		zap.String("message", svcErr.Message),
		zap.Int("code", svcErr.Code),
		zap.String(RequestIDKey, requestID),
	}
	if svcErr.Details != nil {
		fields = append(fields, zap.Any("details", svcErr.Details))
	}
	if cause := svcErr.Unwrap(); cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}

	if svcErr.Code >= http.StatusInternalServerError {
		logger.Error("request error", fields...)
	} else {
		logger.Warn("request error", fields...)
	}
}

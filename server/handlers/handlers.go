// Package handlers provides the HTTP handlers of the slide service.
//
// Handlers decode and validate the request body, call the pipeline or a
// store, and write JSON. Every failure is written as an errors.ServiceError
// carrying the request ID, and logged through errors.LogError.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/server/middleware"
)

// requestLogger returns logger annotated with the request's ID and route.
func requestLogger(logger *zap.Logger, r *http.Request) *zap.Logger {
	return logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

// writeError classifies err, logs it and writes it.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	requestID := middleware.GetRequestID(r.Context())
	svcErr := errors.FromError(requestID, err)
	errors.LogError(logger, svcErr, requestID)
	errors.WriteError(w, svcErr)
}

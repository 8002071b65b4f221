package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/server/auth"
	"github.com/karimd18/project-C-case-study/server/pipeline"
	"github.com/karimd18/project-C-case-study/server/validation"
)

// SlideHandler serves the pipeline endpoints.
type SlideHandler struct {
	pipeline  *pipeline.Pipeline
	validator *validation.Validator
	logger    *zap.Logger
}

// NewSlideHandler creates a SlideHandler.
func NewSlideHandler(p *pipeline.Pipeline, v *validation.Validator, logger *zap.Logger) *SlideHandler {
	return &SlideHandler{pipeline: p, validator: v, logger: logger}
}

// Analyze handles POST /api/analyze. Provider and parse failures are
// returned as 502.
func (h *SlideHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)

	var req validation.GenerateRequest
	if err := h.validator.Decode(r, &req); err != nil {
		writeError(w, r, logger, err)
		return
	}

	analysis, err := h.pipeline.AnalyzeInSession(r.Context(), req.SessionID, req.RawText)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}

	logger.Info("analysis complete", zap.String("intent", analysis.Intent))
	writeJSON(w, logger, http.StatusOK, analysis)
}

// Render handles POST /api/render. It always answers 200; a failed render
// is an ERROR response body.
func (h *SlideHandler) Render(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)

	var req validation.RenderRequest
	if err := h.validator.Decode(r, &req); err != nil {
		writeError(w, r, logger, err)
		return
	}

	resp := h.pipeline.RenderInSession(r.Context(), req.SessionID, auth.UserID(r.Context()), req.Strategy, req.RawText)
	logger.Info("render complete", zap.String("layout", string(resp.Kind)))
	writeJSON(w, logger, http.StatusOK, resp)
}

// Generate handles POST /api/generate.
func (h *SlideHandler) Generate(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)

	var req validation.GenerateRequest
	if err := h.validator.Decode(r, &req); err != nil {
		writeError(w, r, logger, err)
		return
	}

	resp, err := h.pipeline.GenerateInSession(r.Context(), req.SessionID, auth.UserID(r.Context()), req.RawText)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}

	logger.Info("generate complete", zap.String("layout", string(resp.Kind)))
	writeJSON(w, logger, http.StatusOK, resp)
}

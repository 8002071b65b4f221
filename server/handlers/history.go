package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/store"
)

// HistoryHandler serves the read side of the slide history log.
type HistoryHandler struct {
	history store.HistoryStore
	logger  *zap.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(history store.HistoryStore, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// List handles GET /api/history, newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)

	records, err := h.history.ListAll(r.Context())
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, logger, http.StatusOK, records)
}

// Get handles GET /api/history/{id}.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)
	id := chi.URLParam(r, "id")

	record, err := h.history.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	if record == nil {
		writeError(w, r, logger, fmt.Errorf("%w: history record %q", errors.ErrNotFound, id))
		return
	}
	writeJSON(w, logger, http.StatusOK, record)
}

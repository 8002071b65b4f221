package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/errors"
	"github.com/karimd18/project-C-case-study/server/auth"
	"github.com/karimd18/project-C-case-study/server/middleware"
	"github.com/karimd18/project-C-case-study/server/validation"
	"github.com/karimd18/project-C-case-study/store"
)

// ChatHandler serves chat session CRUD.
type ChatHandler struct {
	sessions  store.SessionStore
	validator *validation.Validator
	logger    *zap.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(sessions store.SessionStore, v *validation.Validator, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{sessions: sessions, validator: v, logger: logger}
}

// owner picks the authenticated user over one named by the client.
func owner(r *http.Request, fallback string) string {
	if id := auth.UserID(r.Context()); id != "" {
		return id
	}
	return fallback
}

// Create handles POST /api/chats.
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)

	var req validation.CreateChatRequest
	if r.ContentLength != 0 {
		if err := h.validator.Decode(r, &req); err != nil {
			writeError(w, r, logger, err)
			return
		}
	}

	session, err := h.sessions.CreateSession(r.Context(), owner(r, req.UserID), req.Title)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	logger.Info("chat session created", zap.String("session_id", session.ID))
	writeJSON(w, logger, http.StatusCreated, session)
}

// List handles GET /api/chats?userId=.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)

	userID := owner(r, r.URL.Query().Get("userId"))
	if userID == "" {
		errors.WriteError(w, errors.NewValidationError(
			middleware.GetRequestID(r.Context()),
			"userId is required",
			map[string]interface{}{
				"fields": []validation.ValidationErrorDetail{{
					Field:   "query:userId",
					Message: "provide userId or authenticate",
					Code:    "required_validation_failed",
				}},
			},
		))
		return
	}

	sessions, err := h.sessions.ListSessionsForOwner(r.Context(), userID)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, logger, http.StatusOK, sessions)
}

// Get handles GET /api/chats/{id}.
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)
	id := chi.URLParam(r, "id")

	session, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	if session == nil {
		writeError(w, r, logger, sessionNotFound(id))
		return
	}
	writeJSON(w, logger, http.StatusOK, session)
}

// Rename handles PUT /api/chats/{id}.
func (h *ChatHandler) Rename(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)
	id := chi.URLParam(r, "id")

	var req validation.RenameChatRequest
	if err := h.validator.Decode(r, &req); err != nil {
		writeError(w, r, logger, err)
		return
	}

	if err := h.sessions.RenameSession(r.Context(), id, req.Title); err != nil {
		writeError(w, r, logger, err)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	if session == nil {
		writeError(w, r, logger, sessionNotFound(id))
		return
	}
	writeJSON(w, logger, http.StatusOK, session)
}

// Delete handles DELETE /api/chats/{id}.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)
	id := chi.URLParam(r, "id")

	deleted, err := h.sessions.DeleteSession(r.Context(), id)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	if !deleted {
		writeError(w, r, logger, sessionNotFound(id))
		return
	}
	logger.Info("chat session deleted", zap.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func sessionNotFound(id string) error {
	return fmt.Errorf("%w: chat session %q", errors.ErrNotFound, id)
}

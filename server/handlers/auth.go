package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/server/auth"
	"github.com/karimd18/project-C-case-study/server/validation"
)

// TokenResponse is returned by register and login.
type TokenResponse struct {
	Token string `json:"token"`
}

// AuthHandler serves account registration, login and the current user.
type AuthHandler struct {
	auth      *auth.Service
	validator *validation.Validator
	logger    *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *auth.Service, v *validation.Validator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, validator: v, logger: logger}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)

	var req validation.CredentialsRequest
	if err := h.validator.Decode(r, &req); err != nil {
		writeError(w, r, logger, err)
		return
	}

	token, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, logger, http.StatusCreated, TokenResponse{Token: token})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)

	var req validation.CredentialsRequest
	if err := h.validator.Decode(r, &req); err != nil {
		writeError(w, r, logger, err)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, logger, http.StatusOK, TokenResponse{Token: token})
}

// Me handles GET /user/me. It must run behind the authentication
// middleware.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(h.logger, r)

	user, err := h.auth.User(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	writeJSON(w, logger, http.StatusOK, user)
}

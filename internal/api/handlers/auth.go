package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"wardrobe/internal/core"
	"wardrobe/internal/types"
)

// CredentialSource looks up login credentials by email.
type CredentialSource interface {
	GetCredentialsByEmail(ctx context.Context, email string) (userID, passwordHash string, role types.UserRole, err error)
}

// SessionManager creates and destroys sessions.
type SessionManager interface {
	CreateSession(ctx context.Context, userID string, role types.UserRole) (*types.Session, error)
	InvalidateSession(ctx context.Context, sessionID string) error
}

// StepUpAuthenticator re-verifies the password to refresh step-up freshness
// on an existing session.
type StepUpAuthenticator interface {
	Reauthenticate(ctx context.Context, session *types.Session, password string) error
}

// LoginRequest is the request body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// StepUpRequest is the request body for POST /v1/auth/step-up.
type StepUpRequest struct {
	Password string `json:"password" validate:"required,min=1"`
}

// LoginResponse returns the bearer token for subsequent requests.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// AuthHandler handles login, logout, and step-up re-authentication.
type AuthHandler struct {
	credentials CredentialSource
	sessions    SessionManager
	stepUp      StepUpAuthenticator
	validator   *core.Validator
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler with the provided dependencies.
func NewAuthHandler(
	credentials CredentialSource,
	sessions SessionManager,
	stepUp StepUpAuthenticator,
	v *core.Validator,
	l *slog.Logger,
) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{
		credentials: credentials,
		sessions:    sessions,
		stepUp:      stepUp,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts the auth endpoints. Login is reachable without a
// session; logout and step-up operate on the authenticated actor.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/step-up", h.StepUp)
}

// Login handles POST /v1/auth/login. A fresh login counts as strong auth,
// so admin step-up starts satisfied.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	userID, passwordHash, role, err := h.credentials.GetCredentialsByEmail(r.Context(), req.Email)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		// Same code and message as an unknown email so responses do not
		// reveal which accounts exist.
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthInvalidCreds, "invalid email or password", err))
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), userID, role)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user logged in", "user_id", userID)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: LoginResponse{
		Token:     session.ID,
		ExpiresAt: session.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}})
}

// Logout handles POST /v1/auth/logout. Invalidating an already-gone session
// is a success.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.Session == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	if err := h.sessions.InvalidateSession(r.Context(), actor.Session.ID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"logged_out": true}})
}

// StepUp handles POST /v1/auth/step-up. On success the session's strong-auth
// timestamp is refreshed and guarded admin actions become available again.
func (h *AuthHandler) StepUp(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.Session == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	var req StepUpRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.stepUp.Reauthenticate(r.Context(), actor.Session, req.Password); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"step_up_complete": true}})
}

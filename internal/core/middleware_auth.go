package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"wardrobe/internal/types"
)

// authExemptPaths lists URL paths under /v1 that bypass session
// authentication. The Stripe webhook authenticates by signature instead and
// login is how a session is obtained in the first place.
var authExemptPaths = map[string]bool{
	"/v1/webhooks/stripe": true,
	"/v1/auth/login":      true,
}

// AuthMiddleware resolves the Bearer session token to an Actor and injects
// it into the request context.
//
//	auth_session_missing: no Authorization header, empty token, or a token
//	  that was never issued.
//	auth_session_expired: the session exists but has expired.
//
// If the Sessions field on Server is nil (e.g., during tests that don't
// inject one), the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Sessions == nil {
			next.ServeHTTP(w, r)
			return
		}

		if authExemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthSessionMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthSessionMissing, "Bearer token is required")
			return
		}

		session, err := s.Sessions.ValidateSession(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}

		actor := types.Actor{
			UserID:  session.UserID,
			Role:    session.Role,
			Session: session,
		}
		ctx := types.WithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken parses the Authorization header value and returns the
// token string. It expects "Bearer <token>" (case-insensitive scheme per
// RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError inspects the error from ValidateSession and writes the
// appropriate 401 response.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthSessionExpired:
			s.Logger.Warn("authentication failed: session expired",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionExpired, "Session has expired")
			return
		case types.ErrCodeAuthSessionMissing:
			s.Logger.Warn("authentication failed: session not found",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionMissing, "Invalid session token")
			return
		}
	}

	// Generic error: log it but don't leak internal details.
	s.Logger.Error("authentication failed: unexpected error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthSessionMissing, "Authentication failed")
}

// writeAuthError writes a 401 Unauthorized JSON response with the given code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}

// RequireAdmin checks that the Actor in the request context holds the admin
// role. Unauthenticated requests get 401; non-admin actors get 403. The
// step-up freshness check happens later, inside the admin guard, so a stale
// admin still reaches the handler and receives the structured
// step_up_required denial.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthSessionMissing, "Authentication required")
			return
		}

		if !actor.IsAdmin() {
			resp := APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodePermissionRole),
					Message:   "Admin role required for this operation",
					RequestID: types.GetRequestID(r.Context()),
				},
			}
			JSON(w, r, http.StatusForbidden, resp)
			return
		}

		next.ServeHTTP(w, r)
	})
}

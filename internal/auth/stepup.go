package auth

import (
	"context"
	"log/slog"
	"time"

	"wardrobe/internal/types"

	"golang.org/x/crypto/bcrypt"
)

// DefaultStepUpMaxAge is how recently an admin must have re-entered their
// password before a sensitive mutation is allowed.
const DefaultStepUpMaxAge = 15 * time.Minute

// PasswordSource resolves a user into their stored bcrypt password hash.
type PasswordSource interface {
	GetPasswordHash(ctx context.Context, userID string) (string, error)
}

// HasRecentAdminAuth reports whether the session's last strong
// authentication happened within maxAge of now. Fails closed: a nil session
// or a session that never recorded strong auth is treated as stale.
func HasRecentAdminAuth(session *types.Session, maxAge time.Duration, now time.Time) bool {
	if session == nil || session.LastStrongAuthAt.IsZero() {
		return false
	}
	return now.Sub(session.LastStrongAuthAt) <= maxAge
}

// StepUpService verifies a password challenge and refreshes the session's
// strong-auth timestamp so subsequent admin mutations pass the freshness
// check without re-prompting.
type StepUpService struct {
	passwords PasswordSource
	sessions  SessionRepo
	clock     types.Clock
	logger    *slog.Logger
}

// NewStepUpService creates a new StepUpService.
func NewStepUpService(passwords PasswordSource, sessions SessionRepo, clock types.Clock, logger *slog.Logger) *StepUpService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StepUpService{
		passwords: passwords,
		sessions:  sessions,
		clock:     clock,
		logger:    logger,
	}
}

// Reauthenticate checks the supplied password against the user's stored hash
// and stamps LastStrongAuthAt on success. A wrong password returns
// auth_invalid_credentials without touching the session.
func (s *StepUpService) Reauthenticate(ctx context.Context, session *types.Session, password string) error {
	if session == nil {
		return types.NewAppError(types.ErrCodeAuthSessionMissing, "no session provided", nil)
	}

	hash, err := s.passwords.GetPasswordHash(ctx, session.UserID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		s.logger.Warn("step-up password verification failed", "user_id", session.UserID)
		return types.NewAppError(types.ErrCodeAuthInvalidCreds, "password verification failed", nil)
	}

	now := s.clock.Now()
	if err := s.sessions.RecordStrongAuth(ctx, session.ID, now); err != nil {
		return err
	}
	session.LastStrongAuthAt = now

	s.logger.Info("step-up authentication succeeded",
		"user_id", session.UserID,
		"session_id", session.ID,
	)
	return nil
}

package db

import (
	"context"
	"time"

	"wardrobe/internal/types"
)

// SessionRepo provides data access for the sessions table.
type SessionRepo struct {
	db DBTX
}

// NewSessionRepo creates a SessionRepo backed by the given database
// connection (pool or transaction).
func NewSessionRepo(db DBTX) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create inserts a new session row. The session ID doubles as the bearer
// token, so a primary-key collision means the token generator produced a
// duplicate and the caller must mint a fresh one.
func (r *SessionRepo) Create(ctx context.Context, session *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, role, last_strong_auth_at, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		session.ID, session.UserID, session.Role,
		session.LastStrongAuthAt, session.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictStorage, "session id already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByID loads a session. A missing row means the caller presented a token
// that was never issued or was already invalidated.
func (r *SessionRepo) GetByID(ctx context.Context, sessionID string) (*types.Session, error) {
	var s types.Session
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, role, last_strong_auth_at, expires_at
		 FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&s.ID, &s.UserID, &s.Role, &s.LastStrongAuthAt, &s.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeAuthSessionMissing, "session not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load session", err)
	}
	return &s, nil
}

// DeleteByID hard-deletes a single session.
func (r *SessionRepo) DeleteByID(ctx context.Context, sessionID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteExpired removes sessions whose expiry has passed, returning the
// number of rows removed. Invoked by operational tooling, not the request
// path; an expired session that is still stored is rejected on validation
// regardless.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}

// RecordStrongAuth stamps the session's last strong authentication time
// after a successful step-up password check.
func (r *SessionRepo) RecordStrongAuth(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET last_strong_auth_at = $2 WHERE id = $1`,
		sessionID, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record strong auth", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeAuthSessionMissing, "session not found", nil)
	}
	return nil
}

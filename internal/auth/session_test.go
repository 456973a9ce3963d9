package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardrobe/internal/types"
)

type stubTokenGen struct {
	id  string
	err error
}

func (g *stubTokenGen) GenerateSessionID() (string, error) {
	return g.id, g.err
}

func newTestSessionService(repo SessionRepo, now time.Time) *SessionService {
	return NewSessionService(repo, &stubTokenGen{id: "sess_fixed"}, SessionConfig{
		SessionDuration: 7 * 24 * time.Hour,
		SessionIDPrefix: "sess_",
	}, fixedClock{now}, nil)
}

func TestSessionService_CreateSession_StampsStrongAuth(t *testing.T) {
	repo := newMemSessionRepo()
	svc := newTestSessionService(repo, stepUpNow)

	session, err := svc.CreateSession(context.Background(), "user_1", types.RoleUser)
	require.NoError(t, err)

	// A fresh login counts as strong auth.
	assert.Equal(t, stepUpNow, session.LastStrongAuthAt)
	assert.Equal(t, stepUpNow.Add(7*24*time.Hour), session.ExpiresAt)
	assert.Equal(t, types.RoleUser, session.Role)

	stored, err := repo.GetByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "user_1", stored.UserID)
}

func TestSessionService_ValidateSession_Expired(t *testing.T) {
	repo := newMemSessionRepo()
	require.NoError(t, repo.Create(context.Background(), &types.Session{
		ID:        "sess_old",
		UserID:    "user_1",
		ExpiresAt: stepUpNow.Add(-time.Minute),
	}))
	svc := newTestSessionService(repo, stepUpNow)

	_, err := svc.ValidateSession(context.Background(), "sess_old")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeAuthSessionExpired, appErr.Code)
}

func TestSessionService_ValidateSession_Unknown(t *testing.T) {
	svc := newTestSessionService(newMemSessionRepo(), stepUpNow)

	_, err := svc.ValidateSession(context.Background(), "sess_ghost")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeAuthSessionMissing, appErr.Code)
}

func TestSessionService_InvalidateSession(t *testing.T) {
	repo := newMemSessionRepo()
	require.NoError(t, repo.Create(context.Background(), &types.Session{
		ID:        "sess_1",
		UserID:    "user_1",
		ExpiresAt: stepUpNow.Add(time.Hour),
	}))
	svc := newTestSessionService(repo, stepUpNow)

	require.NoError(t, svc.InvalidateSession(context.Background(), "sess_1"))

	_, err := svc.ValidateSession(context.Background(), "sess_1")
	require.Error(t, err)
}

func TestCryptoTokenGenerator_Format(t *testing.T) {
	gen := NewCryptoTokenGenerator()

	id1, err := gen.GenerateSessionID()
	require.NoError(t, err)
	id2, err := gen.GenerateSessionID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id1, "sess_"))
	assert.Len(t, id1, len("sess_")+64)
	assert.NotEqual(t, id1, id2)
}

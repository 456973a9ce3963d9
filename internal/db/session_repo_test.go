package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"wardrobe/internal/types"
)

func TestSessionRepo_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepo(db)

	now := time.Now().UTC()
	session := &types.Session{
		ID:               "sess_test123",
		UserID:           "user_1",
		Role:             types.RoleUser,
		LastStrongAuthAt: now,
		ExpiresAt:        now.Add(7 * 24 * time.Hour),
	}

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), session)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSessionRepo_Create_DuplicateIDIsConflict(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag(""), &pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &types.Session{ID: "sess_dup"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictStorage, appErr.Code)
}

func TestSessionRepo_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows}).Once()

	_, err := repo.GetByID(context.Background(), "sess_ghost")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeAuthSessionMissing, appErr.Code)
}

func TestSessionRepo_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepo(db)

	now := time.Now().UTC()
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*string) = "sess_found"
				*dest[1].(*string) = "user_1"
				*dest[2].(*types.UserRole) = types.RoleAdmin
				*dest[3].(*time.Time) = now
				*dest[4].(*time.Time) = now.Add(time.Hour)
				return nil
			},
		}).Once()

	session, err := repo.GetByID(context.Background(), "sess_found")
	require.NoError(t, err)
	assert.Equal(t, "user_1", session.UserID)
	assert.Equal(t, types.RoleAdmin, session.Role)
}

func TestSessionRepo_RecordStrongAuth_MissingSession(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.RecordStrongAuth(context.Background(), "sess_ghost", time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeAuthSessionMissing, appErr.Code)
}

func TestSessionRepo_DeleteByID(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 1"), nil)

	err := repo.DeleteByID(context.Background(), "sess_1")
	require.NoError(t, err)
}

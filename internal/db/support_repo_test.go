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

func TestSupportCaseRepo_Close_Applies(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSupportCaseRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	closedAt := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	applied, err := repo.Close(context.Background(), "case_1", "admin_1",
		closedAt, closedAt.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.True(t, applied)
	db.AssertExpectations(t)
}

func TestSupportCaseRepo_Close_AlreadyClosedNotApplied(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSupportCaseRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	applied, err := repo.Close(context.Background(), "case_1", "admin_1",
		time.Now(), time.Now().Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSupportCaseRepo_Reopen_WithinDeadlineApplies(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSupportCaseRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	applied, err := repo.Reopen(context.Background(), "case_1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestSupportCaseRepo_Reopen_PastDeadlineNotApplied(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSupportCaseRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	applied, err := repo.Reopen(context.Background(), "case_1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSupportCaseRepo_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSupportCaseRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows}).Once()

	_, err := repo.GetByID(context.Background(), "ghost")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSupportCase, appErr.Code)
}

func TestSupportCaseRepo_CountOpenByUser(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSupportCaseRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*int) = 3
				return nil
			},
		}).Once()

	count, err := repo.CountOpenByUser(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAdminRateLimitRepo_Enforce_Allowed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdminRateLimitRepo(db)

	resetAt := time.Now().Add(time.Minute).UTC()
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*int) = 5
				*dest[1].(*time.Time) = resetAt
				return nil
			},
		}).Once()

	decision, err := repo.Enforce(context.Background(), "admin_1", "admin.support_case.close", 30, 60)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 25, decision.Remaining)
	assert.Equal(t, resetAt, decision.ResetAt)
	db.AssertExpectations(t)
}

func TestAdminRateLimitRepo_Enforce_Denied(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdminRateLimitRepo(db)

	resetAt := time.Now().Add(30 * time.Second).UTC()

	// Conditional upsert refused; state is read back for metadata.
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows}).Once()
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*int) = 30
				*dest[1].(*time.Time) = resetAt
				return nil
			},
		}).Once()

	decision, err := repo.Enforce(context.Background(), "admin_1", "admin.support_case.close", 30, 60)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Equal(t, resetAt, decision.ResetAt)
	db.AssertExpectations(t)
}

func TestAdminRateLimitRepo_Enforce_ZeroLimitAlwaysDenied(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdminRateLimitRepo(db)

	decision, err := repo.Enforce(context.Background(), "admin_1", "admin.support_case.close", 0, 60)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	// No statement runs when the limit disables the action outright.
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminRateLimitRepo_Prune(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAdminRateLimitRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 4"), nil)

	removed, err := repo.Prune(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}

package support

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardrobe/internal/types"
)

var supportNow = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// memCaseStore is an in-memory CaseStore with the same conditional-patch
// semantics as the SQL repository.
type memCaseStore struct {
	cases map[string]*types.SupportCase
}

func newMemCaseStore(cases ...*types.SupportCase) *memCaseStore {
	store := &memCaseStore{cases: make(map[string]*types.SupportCase)}
	for _, c := range cases {
		store.cases[c.ID] = c
	}
	return store
}

func (s *memCaseStore) GetByID(_ context.Context, caseID string) (*types.SupportCase, error) {
	c, ok := s.cases[caseID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSupportCase, "support case not found", nil)
	}
	copied := *c
	return &copied, nil
}

func (s *memCaseStore) Close(_ context.Context, caseID, closedByUserID string, closedAt, reopenDeadlineAt time.Time) (bool, error) {
	c, ok := s.cases[caseID]
	if !ok || c.Status == types.CaseClosed {
		return false, nil
	}
	c.Status = types.CaseClosed
	c.ClosedAt = &closedAt
	c.ClosedByUserID = &closedByUserID
	c.ReopenDeadlineAt = &reopenDeadlineAt
	c.UpdatedAt = closedAt
	return true, nil
}

func (s *memCaseStore) Reopen(_ context.Context, caseID string, now time.Time) (bool, error) {
	c, ok := s.cases[caseID]
	if !ok || c.Status != types.CaseClosed {
		return false, nil
	}
	if c.ReopenDeadlineAt == nil || !now.Before(*c.ReopenDeadlineAt) {
		return false, nil
	}
	c.Status = types.CaseOpen
	c.ClosedAt = nil
	c.ClosedByUserID = nil
	c.ReopenDeadlineAt = nil
	c.UpdatedAt = now
	return true, nil
}

func openCase(id string) *types.SupportCase {
	return &types.SupportCase{
		ID:        id,
		UserID:    "user_1",
		Subject:   "winter coat missing from closet",
		Status:    types.CaseOpen,
		CreatedAt: supportNow.Add(-48 * time.Hour),
		UpdatedAt: supportNow.Add(-48 * time.Hour),
	}
}

func closedCase(id string, closedAt time.Time) *types.SupportCase {
	closedBy := "user_admin"
	deadline := closedAt.Add(ReopenWindow)
	c := openCase(id)
	c.Status = types.CaseClosed
	c.ClosedAt = &closedAt
	c.ClosedByUserID = &closedBy
	c.ReopenDeadlineAt = &deadline
	return c
}

func newTestService(store CaseStore) *Service {
	return NewService(store, fixedClock{now: supportNow}, nil)
}

func TestServiceCloseOpenCase(t *testing.T) {
	store := newMemCaseStore(openCase("case_1"))
	svc := newTestService(store)

	c, alreadyClosed, err := svc.Close(context.Background(), "case_1", "user_admin")

	require.NoError(t, err)
	assert.False(t, alreadyClosed)
	assert.Equal(t, types.CaseClosed, c.Status)
	require.NotNil(t, c.ClosedAt)
	assert.Equal(t, supportNow, *c.ClosedAt)
	require.NotNil(t, c.ClosedByUserID)
	assert.Equal(t, "user_admin", *c.ClosedByUserID)
	require.NotNil(t, c.ReopenDeadlineAt)
	assert.Equal(t, supportNow.Add(7*24*time.Hour), *c.ReopenDeadlineAt)
}

func TestServiceCloseAlreadyClosedIsIdempotent(t *testing.T) {
	firstClosedAt := supportNow.Add(-24 * time.Hour)
	store := newMemCaseStore(closedCase("case_1", firstClosedAt))
	svc := newTestService(store)

	c, alreadyClosed, err := svc.Close(context.Background(), "case_1", "user_other_admin")

	require.NoError(t, err)
	assert.True(t, alreadyClosed)

	// The original close timestamps are preserved.
	require.NotNil(t, c.ClosedAt)
	assert.Equal(t, firstClosedAt, *c.ClosedAt)
	require.NotNil(t, c.ClosedByUserID)
	assert.Equal(t, "user_admin", *c.ClosedByUserID)
}

func TestServiceCloseUnknownCase(t *testing.T) {
	svc := newTestService(newMemCaseStore())

	_, _, err := svc.Close(context.Background(), "case_missing", "user_admin")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundSupportCase, appErr.Code)
}

func TestServiceReopenWithinWindow(t *testing.T) {
	store := newMemCaseStore(closedCase("case_1", supportNow.Add(-6*24*time.Hour)))
	svc := newTestService(store)

	c, err := svc.Reopen(context.Background(), "case_1")

	require.NoError(t, err)
	assert.Equal(t, types.CaseOpen, c.Status)
	assert.Nil(t, c.ClosedAt)
	assert.Nil(t, c.ClosedByUserID)
	assert.Nil(t, c.ReopenDeadlineAt)
}

func TestServiceReopenAfterDeadline(t *testing.T) {
	closedAt := supportNow.Add(-8 * 24 * time.Hour)
	store := newMemCaseStore(closedCase("case_1", closedAt))
	svc := newTestService(store)

	_, err := svc.Reopen(context.Background(), "case_1")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictReopenWindowClosed, appErr.Code)
	assert.Equal(t, closedAt.Add(ReopenWindow).UTC(), appErr.Details["reopen_deadline_at"])
}

func TestServiceReopenNonClosedCase(t *testing.T) {
	store := newMemCaseStore(openCase("case_1"))
	svc := newTestService(store)

	_, err := svc.Reopen(context.Background(), "case_1")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictCaseState, appErr.Code)
}

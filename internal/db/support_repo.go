package db

import (
	"context"
	"time"

	"wardrobe/internal/types"
)

// SupportCaseRepo provides data access for the support_cases table. The
// close/reopen transitions are conditional single-statement patches so the
// three close-tracking columns always change together.
type SupportCaseRepo struct {
	db DBTX
}

// NewSupportCaseRepo creates a SupportCaseRepo backed by the given database
// connection (pool or transaction).
func NewSupportCaseRepo(db DBTX) *SupportCaseRepo {
	return &SupportCaseRepo{db: db}
}

// GetByID loads a support case.
func (r *SupportCaseRepo) GetByID(ctx context.Context, caseID string) (*types.SupportCase, error) {
	var c types.SupportCase
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, subject, status,
		        closed_at, closed_by_user_id, reopen_deadline_at,
		        created_at, updated_at
		 FROM support_cases WHERE id = $1`,
		caseID,
	).Scan(&c.ID, &c.UserID, &c.Subject, &c.Status,
		&c.ClosedAt, &c.ClosedByUserID, &c.ReopenDeadlineAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSupportCase, "support case not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load support case", err)
	}
	return &c, nil
}

// Close stamps closed_at, closed_by_user_id, and reopen_deadline_at in one
// patch, committing only when the case is not already closed. Returns true
// when the transition applied; false means the case was already closed (the
// existing timestamps are left untouched) or does not exist.
func (r *SupportCaseRepo) Close(ctx context.Context, caseID, closedByUserID string,
	closedAt, reopenDeadlineAt time.Time,
) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE support_cases
		 SET status = $2,
		     closed_at = $3,
		     closed_by_user_id = $4,
		     reopen_deadline_at = $5,
		     updated_at = NOW()
		 WHERE id = $1 AND status != $2`,
		caseID, types.CaseClosed, closedAt, closedByUserID, reopenDeadlineAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to close support case", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reopen clears the close-tracking columns, committing only while the reopen
// deadline has not passed. Returns true when the transition applied.
func (r *SupportCaseRepo) Reopen(ctx context.Context, caseID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE support_cases
		 SET status = $2,
		     closed_at = NULL,
		     closed_by_user_id = NULL,
		     reopen_deadline_at = NULL,
		     updated_at = NOW()
		 WHERE id = $1
		   AND status = $3
		   AND reopen_deadline_at >= $4`,
		caseID, types.CaseOpen, types.CaseClosed, now,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to reopen support case", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountOpenByUser returns the number of non-closed cases for a user, used by
// the admin overview.
func (r *SupportCaseRepo) CountOpenByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM support_cases
		 WHERE user_id = $1 AND status != $2`,
		userID, types.CaseClosed,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count open support cases", err)
	}
	return count, nil
}

// Package support implements the support-case lifecycle: open cases move
// through in_progress to closed, and a closed case may be reopened only
// within a bounded window after closing.
package support

import (
	"context"
	"log/slog"
	"time"

	"wardrobe/internal/types"
)

// ReopenWindow is how long after closing a case remains reopenable.
const ReopenWindow = 7 * 24 * time.Hour

// CaseStore is the persistence surface the lifecycle service consumes. Close
// and Reopen are conditional patches that report whether the transition
// applied, so the service can distinguish races from invalid requests.
type CaseStore interface {
	GetByID(ctx context.Context, caseID string) (*types.SupportCase, error)
	Close(ctx context.Context, caseID, closedByUserID string, closedAt, reopenDeadlineAt time.Time) (bool, error)
	Reopen(ctx context.Context, caseID string, now time.Time) (bool, error)
}

// Service governs support-case state transitions.
type Service struct {
	cases  CaseStore
	clock  types.Clock
	logger *slog.Logger
}

// NewService creates a support lifecycle Service.
func NewService(cases CaseStore, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cases:  cases,
		clock:  clock,
		logger: logger,
	}
}

// Close transitions a case to closed, stamping closed_at, closed_by_user_id,
// and reopen_deadline_at together. Closing an already-closed case is
// idempotent: the existing timestamps are preserved and alreadyClosed is
// reported true.
func (s *Service) Close(ctx context.Context, caseID, closedByUserID string) (*types.SupportCase, bool, error) {
	now := s.clock.Now()
	applied, err := s.cases.Close(ctx, caseID, closedByUserID, now, now.Add(ReopenWindow))
	if err != nil {
		return nil, false, err
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, false, err
	}

	if !applied {
		// The conditional patch did not commit and the case exists, so it
		// was already closed.
		s.logger.Info("support case already closed",
			"case_id", caseID,
			"closed_at", c.ClosedAt,
		)
		return c, true, nil
	}

	s.logger.Info("support case closed",
		"case_id", caseID,
		"closed_by_user_id", closedByUserID,
		"reopen_deadline_at", c.ReopenDeadlineAt,
	)
	return c, false, nil
}

// Reopen transitions a closed case back to open, clearing the three
// close-tracking columns atomically. Reopening is permitted only while the
// reopen deadline has not passed; afterwards the case is terminal and a new
// case must be filed.
func (s *Service) Reopen(ctx context.Context, caseID string) (*types.SupportCase, error) {
	now := s.clock.Now()
	applied, err := s.cases.Reopen(ctx, caseID, now)
	if err != nil {
		return nil, err
	}

	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if !applied {
		if c.Status != types.CaseClosed {
			return nil, types.NewAppError(
				types.ErrCodeConflictCaseState,
				"only closed cases can be reopened",
				nil,
			)
		}
		details := map[string]any{}
		if c.ReopenDeadlineAt != nil {
			details["reopen_deadline_at"] = c.ReopenDeadlineAt.UTC()
		}
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeConflictReopenWindowClosed,
			"the reopen window for this case has closed",
			nil,
			details,
		)
	}

	s.logger.Info("support case reopened", "case_id", caseID)
	return c, nil
}

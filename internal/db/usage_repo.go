package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"wardrobe/internal/types"
)

// UsageCounterRepo provides the atomic reserve/status operations against the
// usage_counters table, keyed by (user_id, metric_key, period_key).
//
// The check-and-increment is a single conditional upsert: the INSERT path
// creates the row already carrying the increment, and the UPDATE path commits
// only when the post-increment count stays within the limit. Postgres executes
// the statement atomically against the row, so concurrent callers serialize at
// the storage layer and no two of them can be granted the same unit of
// capacity. There is deliberately no retry loop here: a denial is a definitive
// answer, not a condition to spin on.
type UsageCounterRepo struct {
	db DBTX
}

// NewUsageCounterRepo creates a UsageCounterRepo backed by the given database
// connection (pool or transaction).
func NewUsageCounterRepo(db DBTX) *UsageCounterRepo {
	return &UsageCounterRepo{db: db}
}

const reserveSQL = `
	INSERT INTO usage_counters (user_id, metric_key, period_key, count, reset_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	ON CONFLICT (user_id, metric_key, period_key) DO UPDATE
	SET count = usage_counters.count + $4,
	    updated_at = NOW()
	WHERE usage_counters.count + $4 <= $6
	RETURNING count, reset_at`

// Reserve atomically consumes incrementBy units against the counter, creating
// the row as part of the same statement when it does not exist yet.
//
// Edge cases enforced before touching the row:
//   - a disabled metric (limit 0) is always denied,
//   - incrementBy larger than the limit is always denied (partial
//     reservations are never granted),
//   - unlimited limits are a programming error; callers must branch first.
//
// On denial the current count and reset time are read back (read-only) so the
// caller can report remaining/reset metadata.
func (r *UsageCounterRepo) Reserve(ctx context.Context, userID string, metric types.MetricKey,
	periodKey types.PeriodKey, limit types.Limit, incrementBy int64, resetAt time.Time,
) (types.ReservationResult, error) {
	if limit.IsUnlimited() {
		return types.ReservationResult{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"unlimited metrics must not be reserved against the counter store",
			nil,
		)
	}
	if limit.IsDisabled() || incrementBy > int64(limit) {
		return r.denied(ctx, userID, metric, periodKey, limit, resetAt)
	}

	var (
		count         int64
		storedResetAt time.Time
	)
	err := r.db.QueryRow(ctx, reserveSQL,
		userID, metric, periodKey, incrementBy, resetAt, int64(limit),
	).Scan(&count, &storedResetAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The conditional update did not commit: quota exhausted.
			return r.denied(ctx, userID, metric, periodKey, limit, resetAt)
		}
		if isSerializationFailure(err) {
			return types.ReservationResult{}, types.NewAppError(
				types.ErrCodeConflictStorage, "usage counter reservation could not commit", err)
		}
		return types.ReservationResult{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to reserve usage counter", err)
	}

	return types.ReservationResult{
		Allowed: true,
		Count:   count,
		Limit:   limit,
		ResetAt: storedResetAt.UTC(),
	}, nil
}

// Status returns the counter's current value without creating or mutating the
// row. A missing row reads as zero usage.
func (r *UsageCounterRepo) Status(ctx context.Context, userID string, metric types.MetricKey,
	periodKey types.PeriodKey, limit types.Limit,
) (types.UsageLimitStatus, error) {
	count, resetAt, err := r.read(ctx, userID, metric, periodKey)
	if err != nil {
		return types.UsageLimitStatus{}, err
	}

	status := types.UsageLimitStatus{
		Limit:   limit,
		Used:    count,
		ResetAt: resetAt,
	}
	if !limit.IsUnlimited() {
		status.Remaining = int64(limit) - count
		if status.Remaining < 0 {
			status.Remaining = 0
		}
	} else {
		status.Remaining = -1
	}
	return status, nil
}

// denied builds the denial result, reading the current count so the response
// carries accurate metadata. The counter row is left untouched.
func (r *UsageCounterRepo) denied(ctx context.Context, userID string, metric types.MetricKey,
	periodKey types.PeriodKey, limit types.Limit, fallbackResetAt time.Time,
) (types.ReservationResult, error) {
	count, resetAt, err := r.read(ctx, userID, metric, periodKey)
	if err != nil {
		return types.ReservationResult{}, err
	}
	if resetAt.IsZero() {
		resetAt = fallbackResetAt
	}
	return types.ReservationResult{
		Allowed: false,
		Count:   count,
		Limit:   limit,
		ResetAt: resetAt,
	}, nil
}

// read fetches (count, reset_at) for the key tuple, treating a missing row as
// zero usage.
func (r *UsageCounterRepo) read(ctx context.Context, userID string, metric types.MetricKey,
	periodKey types.PeriodKey,
) (int64, time.Time, error) {
	var (
		count   int64
		resetAt time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT count, reset_at FROM usage_counters
		 WHERE user_id = $1 AND metric_key = $2 AND period_key = $3`,
		userID, metric, periodKey,
	).Scan(&count, &resetAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to read usage counter", err)
	}
	return count, resetAt.UTC(), nil
}

// PruneExpired deletes counter rows whose window ended before the retention
// cutoff. Lifetime counters carry a far-future reset_at and are never
// matched. Invoked by operational tooling, not the request path.
func (r *UsageCounterRepo) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM usage_counters WHERE reset_at < $1`,
		before,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune usage counters", err)
	}
	return tag.RowsAffected(), nil
}

package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"wardrobe/internal/types"
)

// AdminRateLimitRepo enforces durable per-actor rate limits on administrative
// actions, keyed by (actor_user_id, action_key). It follows the same atomicity
// discipline as UsageCounterRepo: a single conditional upsert that commits
// only when the window has rolled over or the post-increment count stays
// within the limit. Counts survive process restarts and are shared across
// server instances, unlike an in-memory limiter.
type AdminRateLimitRepo struct {
	db DBTX
}

// NewAdminRateLimitRepo creates an AdminRateLimitRepo backed by the given
// database connection (pool or transaction).
func NewAdminRateLimitRepo(db DBTX) *AdminRateLimitRepo {
	return &AdminRateLimitRepo{db: db}
}

const enforceSQL = `
	INSERT INTO admin_rate_limits (actor_user_id, action_key, count, reset_at, window_seconds, created_at, updated_at)
	VALUES ($1, $2, 1, NOW() + make_interval(secs => $3), $3, NOW(), NOW())
	ON CONFLICT (actor_user_id, action_key) DO UPDATE
	SET count = CASE WHEN admin_rate_limits.reset_at <= NOW()
	                 THEN 1
	                 ELSE admin_rate_limits.count + 1 END,
	    reset_at = CASE WHEN admin_rate_limits.reset_at <= NOW()
	                    THEN NOW() + make_interval(secs => $3)
	                    ELSE admin_rate_limits.reset_at END,
	    window_seconds = $3,
	    updated_at = NOW()
	WHERE admin_rate_limits.reset_at <= NOW()
	   OR admin_rate_limits.count + 1 <= $4
	RETURNING count, reset_at`

// Enforce consumes one slot of the actor's window for actionKey, allowing at
// most limit actions per windowSeconds. The statement commits atomically; when
// the conditional update does not commit, the attempt is denied and the
// current window state is read back for the response metadata.
func (r *AdminRateLimitRepo) Enforce(ctx context.Context, actorUserID, actionKey string,
	limit int, windowSeconds int,
) (types.RateLimitDecision, error) {
	if limit <= 0 {
		return types.RateLimitDecision{Allowed: false, Limit: limit}, nil
	}

	var (
		count   int
		resetAt time.Time
	)
	err := r.db.QueryRow(ctx, enforceSQL,
		actorUserID, actionKey, windowSeconds, limit,
	).Scan(&count, &resetAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.deniedState(ctx, actorUserID, actionKey, limit)
		}
		if isSerializationFailure(err) {
			return types.RateLimitDecision{}, types.NewAppError(
				types.ErrCodeConflictStorage, "admin rate limit enforcement could not commit", err)
		}
		return types.RateLimitDecision{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to enforce admin rate limit", err)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return types.RateLimitDecision{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt.UTC(),
	}, nil
}

// deniedState reads the current window so a denial carries accurate
// remaining/reset metadata without mutating the record.
func (r *AdminRateLimitRepo) deniedState(ctx context.Context, actorUserID, actionKey string,
	limit int,
) (types.RateLimitDecision, error) {
	var (
		count   int
		resetAt time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT count, reset_at FROM admin_rate_limits
		 WHERE actor_user_id = $1 AND action_key = $2`,
		actorUserID, actionKey,
	).Scan(&count, &resetAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return types.RateLimitDecision{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to read admin rate limit state", err)
	}

	return types.RateLimitDecision{
		Allowed:   false,
		Limit:     limit,
		Remaining: 0,
		ResetAt:   resetAt.UTC(),
	}, nil
}

// Prune deletes expired windows older than the retention cutoff, returning
// the number of rows removed. Admin rate-limit rows have short retention;
// this is invoked by operational tooling, not the request path.
func (r *AdminRateLimitRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM admin_rate_limits WHERE reset_at < $1`,
		before,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune admin rate limits", err)
	}
	return tag.RowsAffected(), nil
}

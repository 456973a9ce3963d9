// Package admin guards sensitive administrative mutations with a durable
// rate limit and a step-up authentication freshness check. Both must pass
// before a handler is allowed to proceed.
package admin

import (
	"context"
	"log/slog"
	"time"

	"wardrobe/internal/auth"
	"wardrobe/internal/types"
)

// RateLimiter is the durable per-actor window counter the guard consumes.
type RateLimiter interface {
	Enforce(ctx context.Context, actorUserID, actionKey string, limit int, windowSeconds int) (types.RateLimitDecision, error)
}

// GuardConfig bounds how fast and how stale an admin may act.
type GuardConfig struct {
	// ActionLimit is the maximum number of guarded mutations per window.
	ActionLimit int

	// ActionWindow is the length of the rate-limit window.
	ActionWindow time.Duration

	// StepUpMaxAge is how recently the admin must have re-verified their
	// password.
	StepUpMaxAge time.Duration
}

// DefaultGuardConfig returns the production guard bounds.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		ActionLimit:  30,
		ActionWindow: time.Minute,
		StepUpMaxAge: auth.DefaultStepUpMaxAge,
	}
}

// Guard authorizes admin mutations. The rate limit is checked before the
// step-up freshness so a stale admin cannot probe quota state without
// consuming window slots.
type Guard struct {
	limiter RateLimiter
	config  GuardConfig
	clock   types.Clock
	logger  *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(limiter RateLimiter, config GuardConfig, clock types.Clock, logger *slog.Logger) *Guard {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		limiter: limiter,
		config:  config,
		clock:   clock,
		logger:  logger,
	}
}

// Authorize admits one guarded action for the actor or returns a typed
// denial. Denials carry limit, remaining, and reset_at in the error details
// so clients can display accurate retry guidance.
func (g *Guard) Authorize(ctx context.Context, actor *types.Actor, actionKey string) error {
	if actor == nil || !actor.IsAdmin() {
		return types.NewAppError(types.ErrCodePermissionRole, "admin role required", nil)
	}

	windowSeconds := int(g.config.ActionWindow / time.Second)
	decision, err := g.limiter.Enforce(ctx, actor.UserID, actionKey, g.config.ActionLimit, windowSeconds)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		g.logger.Warn("admin action rate limited",
			"actor_user_id", actor.UserID,
			"action_key", actionKey,
			"reset_at", decision.ResetAt,
		)
		return types.NewAppErrorWithDetails(
			types.ErrCodeRateLimit,
			"too many admin actions in the current window",
			nil,
			map[string]any{
				"limit":     decision.Limit,
				"remaining": decision.Remaining,
				"reset_at":  decision.ResetAt,
			},
		)
	}

	if !auth.HasRecentAdminAuth(actor.Session, g.config.StepUpMaxAge, g.clock.Now()) {
		g.logger.Info("admin action requires step-up",
			"actor_user_id", actor.UserID,
			"action_key", actionKey,
		)
		return types.NewAppErrorWithDetails(
			types.ErrCodeStepUpRequired,
			"recent password verification required for this action",
			nil,
			map[string]any{
				"max_age_seconds": int(g.config.StepUpMaxAge / time.Second),
			},
		)
	}

	return nil
}

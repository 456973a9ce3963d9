package db

import (
	"context"
	"log/slog"
	"time"

	"wardrobe/internal/types"
)

// SubscriptionRepo manages the locally cached subscription records that the
// entitlements resolver reads and the Stripe webhook handler writes.
//
// Key invariant: ApplyEvent uses optimistic locking via last_event_at so that
// out-of-order webhook deliveries cannot regress the cached state. Old or
// duplicate events are silently ignored (idempotent no-op).
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given database
// connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// GetBillingProfile returns the user's subscription record (nil when the user
// has never subscribed) together with the account creation time, which anchors
// free-tier usage windows.
func (r *SubscriptionRepo) GetBillingProfile(ctx context.Context, userID string) (*types.Subscription, time.Time, error) {
	var (
		createdAt          time.Time
		customerID         *string
		subscriptionID     *string
		planCode           *string
		interval           *string
		state              *string
		currentPeriodStart *time.Time
		currentPeriodEnd   *time.Time
		cancelAtPeriodEnd  *bool
		lastEventAt        *time.Time
		updatedAt          *time.Time
	)

	err := r.db.QueryRow(ctx,
		`SELECT u.created_at,
		        s.stripe_customer_id, s.stripe_subscription_id,
		        s.plan_code, s.plan_interval, s.billing_state,
		        s.current_period_start, s.current_period_end,
		        s.cancel_at_period_end, s.last_event_at, s.updated_at
		 FROM users u
		 LEFT JOIN subscriptions s ON s.user_id = u.id
		 WHERE u.id = $1`,
		userID,
	).Scan(&createdAt, &customerID, &subscriptionID, &planCode, &interval, &state,
		&currentPeriodStart, &currentPeriodEnd, &cancelAtPeriodEnd, &lastEventAt, &updatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, time.Time{}, types.NewAppError(
				types.ErrCodeNotFoundUser, "user not found", err)
		}
		return nil, time.Time{}, types.NewAppError(
			types.ErrCodeInternalDB, "failed to load billing profile", err)
	}

	if subscriptionID == nil {
		return nil, createdAt.UTC(), nil
	}

	sub := &types.Subscription{
		UserID:               userID,
		StripeSubscriptionID: *subscriptionID,
		PlanCode:             types.PlanCode(deref(planCode)),
		Interval:             types.PlanInterval(deref(interval)),
		State:                types.BillingState(deref(state)),
	}
	if customerID != nil {
		sub.StripeCustomerID = *customerID
	}
	if currentPeriodStart != nil {
		sub.CurrentPeriodStart = currentPeriodStart.UTC()
	}
	if currentPeriodEnd != nil {
		sub.CurrentPeriodEnd = currentPeriodEnd.UTC()
	}
	if cancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *cancelAtPeriodEnd
	}
	if lastEventAt != nil {
		sub.LastEventAt = lastEventAt.UTC()
	}
	if updatedAt != nil {
		sub.UpdatedAt = updatedAt.UTC()
	}
	return sub, createdAt.UTC(), nil
}

// GetStripeCustomerID returns the Stripe customer ID for the user, or "" when
// no billing account exists.
func (r *SubscriptionRepo) GetStripeCustomerID(ctx context.Context, userID string) (string, error) {
	var customerID *string
	err := r.db.QueryRow(ctx,
		`SELECT stripe_customer_id FROM subscriptions WHERE user_id = $1`,
		userID,
	).Scan(&customerID)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to load stripe customer id", err)
	}
	if customerID == nil {
		return "", nil
	}
	return *customerID, nil
}

// ApplyEvent upserts the subscription state carried by a provider webhook
// event. The update commits only when eventAt is strictly newer than the
// stored last_event_at; a stale event leaves the row untouched and returns
// without error.
func (r *SubscriptionRepo) ApplyEvent(ctx context.Context, sub *types.Subscription, eventAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions
		   (user_id, stripe_customer_id, stripe_subscription_id,
		    plan_code, plan_interval, billing_state,
		    current_period_start, current_period_end, cancel_at_period_end,
		    last_event_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET stripe_customer_id = EXCLUDED.stripe_customer_id,
		     stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		     plan_code = EXCLUDED.plan_code,
		     plan_interval = EXCLUDED.plan_interval,
		     billing_state = EXCLUDED.billing_state,
		     current_period_start = EXCLUDED.current_period_start,
		     current_period_end = EXCLUDED.current_period_end,
		     cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		     last_event_at = EXCLUDED.last_event_at,
		     updated_at = NOW()
		 WHERE subscriptions.last_event_at IS NULL
		    OR subscriptions.last_event_at < EXCLUDED.last_event_at`,
		sub.UserID, sub.StripeCustomerID, sub.StripeSubscriptionID,
		sub.PlanCode, sub.Interval, sub.State,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		eventAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply subscription event", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("stale subscription event ignored (optimistic lock)",
			"user_id", sub.UserID,
			"event_at", eventAt,
		)
	}
	return nil
}

// MarkPastDue flips the billing state for the subscription owned by the given
// Stripe customer. Payment-failure events carry an invoice, not a full
// subscription object, so this is a targeted state transition under the same
// last_event_at optimistic lock as ApplyEvent.
func (r *SubscriptionRepo) MarkPastDue(ctx context.Context, stripeCustomerID string, eventAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET billing_state = $1, last_event_at = $2, updated_at = NOW()
		 WHERE stripe_customer_id = $3
		   AND (last_event_at IS NULL OR last_event_at < $2)`,
		types.BillingPastDue, eventAt, stripeCustomerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark subscription past_due", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.Info("payment failure event ignored (unknown customer or stale event)",
			"stripe_customer_id", stripeCustomerID,
			"event_at", eventAt,
		)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package billing

import (
	"context"
	"log/slog"
	"time"

	"wardrobe/internal/types"
)

// SubscriptionSource provides the billing profile the resolver works from:
// the locally cached subscription record (nil when the user has never had a
// billing account) and the account creation time used to anchor free-tier
// windows.
type SubscriptionSource interface {
	GetBillingProfile(ctx context.Context, userID string) (*types.Subscription, time.Time, error)
}

// Resolver computes the effective entitlements for a user at a point in time.
// Entitlements are derived per request and never cached.
type Resolver struct {
	catalog *Catalog
	subs    SubscriptionSource
	clock   types.Clock
	logger  *slog.Logger
}

// NewResolver creates a Resolver over the given catalog and subscription
// source.
func NewResolver(catalog *Catalog, subs SubscriptionSource, clock types.Clock, logger *slog.Logger) *Resolver {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		catalog: catalog,
		subs:    subs,
		clock:   clock,
		logger:  logger,
	}
}

// EffectivePlanCode is the pure billing-state-to-plan mapping. The paid code
// passes through during active, trialing, past_due (payment-retry grace), and
// scheduled_cancel (cancellation takes effect at period end); everything else
// degrades to free. Unknown states degrade to free as well -- a provider
// misconfiguration must never grant access.
func EffectivePlanCode(state types.BillingState, code types.PlanCode) types.PlanCode {
	switch state {
	case types.BillingActive, types.BillingTrialing, types.BillingPastDue, types.BillingScheduledCancel:
		return code
	default:
		return types.PlanFree
	}
}

// Resolve computes the entitlements for userID at "now".
//
// The only error paths are storage failures; billing misconfiguration
// (unrecognized plan code or state) fails closed to the free plan instead of
// erroring the request.
func (r *Resolver) Resolve(ctx context.Context, userID string) (types.Entitlements, error) {
	sub, accountCreatedAt, err := r.subs.GetBillingProfile(ctx, userID)
	if err != nil {
		return types.Entitlements{}, err
	}
	now := r.clock.Now()

	if sub == nil {
		return r.freeEntitlements(accountCreatedAt, now, false, ""), nil
	}

	state := sub.State
	if state == types.BillingActive && sub.CancelAtPeriodEnd {
		state = types.BillingScheduledCancel
	}

	effectiveCode := EffectivePlanCode(state, sub.PlanCode)
	effectiveInterval := sub.Interval
	if IsFreePlan(effectiveCode) {
		effectiveInterval = types.IntervalMonth
	}

	plan, err := r.catalog.Definition(effectiveCode, effectiveInterval)
	if err != nil {
		// Unrecognized provider plan code: fail closed to free.
		r.logger.WarnContext(ctx, "unrecognized plan in subscription record, degrading to free",
			"user_id", userID,
			"plan_code", sub.PlanCode,
			"interval", sub.Interval,
		)
		return r.freeEntitlements(accountCreatedAt, now, true, state), nil
	}

	ent := types.Entitlements{
		EffectivePlanCode: effectiveCode,
		EffectiveInterval: effectiveInterval,
		BillingState:      state,
		IsPaid:            !IsFreePlan(effectiveCode),
		HasBillingAccount: true,
		Plan:              plan,
	}

	subPeriod := types.PeriodFromSubscription(sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	if ent.IsPaid && subPeriod.Contains(now) {
		ent.Period = subPeriod
		renewal := sub.CurrentPeriodEnd.UTC()
		ent.RenewalAt = &renewal
	} else {
		ent.Period = types.AnchoredMonthlyWindow(accountCreatedAt, now)
	}

	return ent, nil
}

// freeEntitlements builds the free-tier entitlements with a rolling monthly
// window anchored to account creation, so free quotas still reset predictably.
func (r *Resolver) freeEntitlements(accountCreatedAt, now time.Time, hasBilling bool, state types.BillingState) types.Entitlements {
	plan, err := r.catalog.Definition(types.PlanFree, types.IntervalMonth)
	if err != nil {
		// The free plan is always registered; an empty definition here means
		// the catalog itself is broken. Zero-limit entitlements deny everything.
		r.logger.Error("free plan missing from catalog", "error", err)
		plan = types.PlanDefinition{Code: types.PlanFree, Interval: types.IntervalMonth}
	}
	return types.Entitlements{
		EffectivePlanCode: types.PlanFree,
		EffectiveInterval: types.IntervalMonth,
		BillingState:      state,
		IsPaid:            false,
		HasBillingAccount: hasBilling,
		Plan:              plan,
		Period:            types.AnchoredMonthlyWindow(accountCreatedAt, now),
	}
}

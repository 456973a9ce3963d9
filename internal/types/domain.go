// Package types defines the shared domain model for the wardrobe service:
// plan and billing enumerations, entitlements, usage counters, support cases,
// and the application error taxonomy.
package types

import "time"

// PlanCode identifies a plan internally and at the billing provider.
type PlanCode string

const (
	PlanFree PlanCode = "free"
	PlanPlus PlanCode = "plus"
	PlanPro  PlanCode = "pro"
)

// PlanLabelCode is the user-facing plan identifier. It diverges from PlanCode
// for the free tier, which is marketed as "Starter".
type PlanLabelCode string

const (
	LabelStarter PlanLabelCode = "starter"
	LabelPlus    PlanLabelCode = "plus"
	LabelPro     PlanLabelCode = "pro"
)

// PlanInterval is the billing interval of a paid plan.
type PlanInterval string

const (
	IntervalMonth PlanInterval = "month"
	IntervalYear  PlanInterval = "year"
)

// BillingState mirrors the subscription status reported by the payment
// provider, plus the locally derived scheduled_cancel state.
type BillingState string

const (
	BillingActive          BillingState = "active"
	BillingTrialing        BillingState = "trialing"
	BillingPastDue         BillingState = "past_due"
	BillingScheduledCancel BillingState = "scheduled_cancel"
	BillingUnpaid          BillingState = "unpaid"
	BillingCanceled        BillingState = "canceled"
)

// MetricKey identifies a metered usage dimension.
type MetricKey string

const (
	MetricAIGenerationsMonthly MetricKey = "ai_today_ai_generations_monthly"
	MetricOutfitChecksHourly   MetricKey = "outfit_checks_hourly"
	MetricTrialGenerations     MetricKey = "trial_generations_lifetime"
	MetricWardrobeItems        MetricKey = "wardrobe_items_total"
)

// FeatureKey identifies a boolean plan feature.
type FeatureKey string

const (
	FeatureAIStylist       FeatureKey = "ai_stylist"
	FeatureClosetAnalytics FeatureKey = "closet_analytics"
	FeaturePrioritySupport FeatureKey = "priority_support"
)

// Limit is a per-metric usage cap. Zero means the feature is disabled for the
// plan; LimitUnlimited means no cap. Unlimited metrics must never reach the
// counter store -- callers branch on IsUnlimited before reserving.
type Limit int64

// LimitUnlimited is the sentinel for metrics without a cap. It is a distinct
// value rather than zero so that "disabled" and "unlimited" cannot be confused.
const LimitUnlimited Limit = -1

// IsUnlimited reports whether the limit represents "no cap".
func (l Limit) IsUnlimited() bool { return l == LimitUnlimited }

// IsDisabled reports whether the metric is switched off for the plan.
func (l Limit) IsDisabled() bool { return l == 0 }

// PlanDefinition is the static description of one (code, interval) plan
// combination. Definitions are immutable after process start.
type PlanDefinition struct {
	Code        PlanCode
	Interval    PlanInterval
	DisplayName string
	PriceCents  int64
	Limits      map[MetricKey]Limit
	Features    map[FeatureKey]bool
}

// BillingPeriod is the current billing-cycle window. Key is the stable
// identifier used as part of usage counter identity.
type BillingPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Key   PeriodKey `json:"key"`
}

// Contains reports whether t falls inside the half-open window [Start, End).
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Subscription is the locally cached billing record for a user, kept in sync
// with the payment provider by the webhook handler.
type Subscription struct {
	UserID               string
	StripeCustomerID     string
	StripeSubscriptionID string
	PlanCode             PlanCode
	Interval             PlanInterval
	State                BillingState
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	LastEventAt          time.Time
	UpdatedAt            time.Time
}

// Entitlements is the per-request derived view of what a user may do right
// now. It is computed, used, and discarded -- never persisted.
type Entitlements struct {
	EffectivePlanCode PlanCode            `json:"effective_plan_code"`
	EffectiveInterval PlanInterval        `json:"effective_interval"`
	BillingState      BillingState        `json:"billing_state"`
	IsPaid            bool                `json:"is_paid"`
	HasBillingAccount bool                `json:"has_billing_account"`
	Plan              PlanDefinition      `json:"-"`
	Period            BillingPeriod       `json:"period"`
	RenewalAt         *time.Time          `json:"renewal_at,omitempty"`
	Usage             map[MetricKey]int64 `json:"usage,omitempty"`
}

// ReservationResult is the outcome of an atomic check-and-increment against a
// usage counter. Count is the stored count after the operation (unchanged when
// the reservation was denied).
type ReservationResult struct {
	Allowed bool      `json:"allowed"`
	Count   int64     `json:"count"`
	Limit   Limit     `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// UsageLimitStatus is the read-only quota view for display. Produced without
// mutating any counter.
type UsageLimitStatus struct {
	Limit     Limit     `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RateLimitDecision is the outcome of an admin rate-limit enforcement call.
type RateLimitDecision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// SupportCaseStatus is the lifecycle state of a support case.
type SupportCaseStatus string

const (
	CaseOpen       SupportCaseStatus = "open"
	CaseInProgress SupportCaseStatus = "in_progress"
	CaseClosed     SupportCaseStatus = "closed"
)

// SupportCase is a user support request. The three close-tracking fields are
// set together on close and cleared together on reopen: ReopenDeadlineAt is
// non-nil if and only if Status == closed.
type SupportCase struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	Subject          string            `json:"subject"`
	Status           SupportCaseStatus `json:"status"`
	ClosedAt         *time.Time        `json:"closed_at,omitempty"`
	ClosedByUserID   *string           `json:"closed_by_user_id,omitempty"`
	ReopenDeadlineAt *time.Time        `json:"reopen_deadline_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// OutfitGeneration is one completed AI outfit generation, recorded after
// the usage reservation for it succeeded.
type OutfitGeneration struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Prompt    string    `json:"prompt"`
	Style     string    `json:"style,omitempty"`
	PeriodKey PeriodKey `json:"period_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Invoice is a billing-provider invoice mapped into the domain.
type Invoice struct {
	ID          string     `json:"id"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
	PDFURL      string     `json:"pdf_url,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// UserRole is the authorization level of a session.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Session is the authenticated-session view the service consumes from the
// auth provider. LastStrongAuthAt is the most recent password or MFA
// verification, used by the step-up gate.
type Session struct {
	ID               string
	UserID           string
	Role             UserRole
	LastStrongAuthAt time.Time
	ExpiresAt        time.Time
}

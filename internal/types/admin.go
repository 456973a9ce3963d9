package types

import "time"

// UserOverview is the admin dashboard's read-only summary of one user.
type UserOverview struct {
	UserID            string        `json:"user_id"`
	Email             string        `json:"email"`
	CreatedAt         time.Time     `json:"created_at"`
	PlanCode          PlanCode      `json:"plan_code"`
	PlanLabel         PlanLabelCode `json:"plan_label"`
	BillingState      BillingState  `json:"billing_state,omitempty"`
	HasBillingAccount bool          `json:"has_billing_account"`
	OpenSupportCases  int           `json:"open_support_cases"`
}

package db

import (
	"context"
	"time"

	"wardrobe/internal/types"
)

// UserRepo provides the read access the admin surface needs over the users
// table. Account lifecycle itself (signup, verification) is handled by the
// auth provider and is out of scope here.
type UserRepo struct {
	db DBTX
}

// NewUserRepo creates a UserRepo backed by the given database connection
// (pool or transaction).
func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

// GetOverview returns the admin summary for one user, joining the cached
// subscription record. Plan fields reflect the raw cached state, not resolved
// entitlements; the handler composes the resolver for the effective view.
func (r *UserRepo) GetOverview(ctx context.Context, userID string) (*types.UserOverview, error) {
	var (
		o            types.UserOverview
		createdAt    time.Time
		planCode     *string
		billingState *string
		customerID   *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT u.id, u.email, u.created_at,
		        s.plan_code, s.billing_state, s.stripe_customer_id
		 FROM users u
		 LEFT JOIN subscriptions s ON s.user_id = u.id
		 WHERE u.id = $1`,
		userID,
	).Scan(&o.UserID, &o.Email, &createdAt, &planCode, &billingState, &customerID)
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user overview", err)
	}

	o.CreatedAt = createdAt.UTC()
	o.PlanCode = types.PlanFree
	if planCode != nil {
		o.PlanCode = types.PlanCode(*planCode)
	}
	if billingState != nil {
		o.BillingState = types.BillingState(*billingState)
	}
	o.HasBillingAccount = customerID != nil && *customerID != ""
	return &o, nil
}

// GetCredentialsByEmail resolves a login email into the user ID, stored
// bcrypt hash, and role. The caller performs the comparison so a miss and a
// wrong password take the same code path.
func (r *UserRepo) GetCredentialsByEmail(ctx context.Context, email string) (userID, passwordHash string, role types.UserRole, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT id, password_hash, role FROM users WHERE email = $1`,
		email,
	).Scan(&userID, &passwordHash, &role)
	if err != nil {
		if isNoRows(err) {
			return "", "", "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", err)
		}
		return "", "", "", types.NewAppError(types.ErrCodeInternalDB, "failed to load credentials", err)
	}
	return userID, passwordHash, role, nil
}

// GetPasswordHash returns the bcrypt hash for step-up re-authentication.
func (r *UserRepo) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := r.db.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE id = $1`,
		userID,
	).Scan(&hash)
	if err != nil {
		if isNoRows(err) {
			return "", types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to load password hash", err)
	}
	return hash, nil
}

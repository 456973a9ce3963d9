package db

import (
	"context"

	"wardrobe/internal/types"
)

// AuditLogRepo is the insert-only writer for the admin_audit_log table.
// Every admin mutation records an event; rows are never updated or deleted
// from the request path.
type AuditLogRepo struct {
	db DBTX
}

// NewAuditLogRepo creates an AuditLogRepo backed by the given database
// connection (pool or transaction).
func NewAuditLogRepo(db DBTX) *AuditLogRepo {
	return &AuditLogRepo{db: db}
}

// Log records an audit event.
func (r *AuditLogRepo) Log(ctx context.Context, event types.AuditEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO admin_audit_log
		   (id, actor_user_id, actor_role, action, resource_id, resource_type,
		    old_value, new_value, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID,
		event.Actor.UserID,
		event.Actor.Role,
		event.Action,
		event.ResourceID,
		event.ResourceType,
		nilIfEmptyJSON(event.OldValue),
		nilIfEmptyJSON(event.NewValue),
		event.Timestamp,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write audit log entry", err)
	}
	return nil
}

// nilIfEmptyJSON maps an empty raw message to SQL NULL.
func nilIfEmptyJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

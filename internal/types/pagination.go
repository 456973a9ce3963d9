package types

import (
	"encoding/json"
	"time"
)

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ListInvoicesParams selects a page of invoice history.
type ListInvoicesParams struct {
	Limit  int
	Cursor string
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings   []string  `json:"warnings,omitempty"`
	Pagination *PageInfo `json:"pagination,omitempty"`
}

// AuditEvent records an administrative action for auditing purposes.
type AuditEvent struct {
	ID           string          `json:"id"`
	Actor        Actor           `json:"actor"`
	Action       string          `json:"action"`
	ResourceID   string          `json:"resource_id"`
	ResourceType string          `json:"resource_type"`
	OldValue     json.RawMessage `json:"old_value,omitempty"`
	NewValue     json.RawMessage `json:"new_value,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Standard audit action strings. Admin handlers MUST use these constants.
const (
	AuditActionSupportCaseClosed   = "support_case.closed"
	AuditActionSupportCaseReopened = "support_case.reopened"
	AuditActionUserOverviewViewed  = "admin.user_overview.viewed"
)

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"wardrobe/internal/billing"
	"wardrobe/internal/core"
	"wardrobe/internal/types"
)

// Admin action keys for per-actor rate limiting. Each distinct admin
// operation gets its own key so one noisy surface cannot starve another.
const (
	actionAdminUserOverview = "admin.user_overview"
	actionAdminCaseClose    = "admin.support_case.close"
	actionAdminCaseReopen   = "admin.support_case.reopen"
)

// AdminGuard authorizes a single admin action: role, rate limit, then
// step-up freshness, in that order.
type AdminGuard interface {
	Authorize(ctx context.Context, actor *types.Actor, actionKey string) error
}

// UserDirectory provides the admin read view over user accounts.
type UserDirectory interface {
	GetOverview(ctx context.Context, userID string) (*types.UserOverview, error)
}

// SupportCaseService drives the support case lifecycle transitions.
type SupportCaseService interface {
	Close(ctx context.Context, caseID, closedByUserID string) (*types.SupportCase, bool, error)
	Reopen(ctx context.Context, caseID string) (*types.SupportCase, error)
}

// OpenCaseCounter counts a user's open support cases for the overview.
type OpenCaseCounter interface {
	CountOpenByUser(ctx context.Context, userID string) (int, error)
}

// AuditLogger persists admin audit trail entries.
type AuditLogger interface {
	Log(ctx context.Context, event types.AuditEvent) error
}

// CloseCaseResponse is the response for support case close and reopen.
type CloseCaseResponse struct {
	Case          *types.SupportCase `json:"case"`
	AlreadyClosed bool               `json:"already_closed,omitempty"`
}

// AdminHandler handles the admin-only surface. Every endpoint here sits
// behind the guard: rate limit first, then step-up freshness, so a stale
// admin session cannot probe without consuming rate-limit slots.
type AdminHandler struct {
	guard     AdminGuard
	users     UserDirectory
	cases     SupportCaseService
	openCases OpenCaseCounter
	audit     AuditLogger
	clock     types.Clock
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the provided dependencies.
func NewAdminHandler(
	guard AdminGuard,
	users UserDirectory,
	cases SupportCaseService,
	openCases OpenCaseCounter,
	audit AuditLogger,
	clock types.Clock,
	l *slog.Logger,
) *AdminHandler {
	if l == nil {
		l = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &AdminHandler{
		guard:     guard,
		users:     users,
		cases:     cases,
		openCases: openCases,
		audit:     audit,
		clock:     clock,
		logger:    l,
	}
}

// RegisterRoutes mounts the admin endpoints behind the admin-role middleware.
func (h *AdminHandler) RegisterRoutes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/admin/users/{userID}/overview", h.GetUserOverview)
		r.Post("/admin/support-cases/{caseID}/close", h.CloseSupportCase)
		r.Post("/admin/support-cases/{caseID}/reopen", h.ReopenSupportCase)
	})
}

// GetUserOverview handles GET /v1/admin/users/{userID}/overview.
func (h *AdminHandler) GetUserOverview(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	if err := h.guard.Authorize(r.Context(), &actor, actionAdminUserOverview); err != nil {
		core.Error(w, r, err)
		return
	}

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField, "user id is required", nil))
		return
	}

	overview, err := h.users.GetOverview(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	label, err := billing.ToLabelCode(overview.PlanCode)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	overview.PlanLabel = label

	openCount, err := h.openCases.CountOpenByUser(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	overview.OpenSupportCases = openCount

	h.writeAudit(r.Context(), actor, types.AuditActionUserOverviewViewed, userID, "user", nil, nil)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: overview})
}

// CloseSupportCase handles POST /v1/admin/support-cases/{caseID}/close.
// Closing an already closed case is an idempotent success.
func (h *AdminHandler) CloseSupportCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	if err := h.guard.Authorize(r.Context(), &actor, actionAdminCaseClose); err != nil {
		core.Error(w, r, err)
		return
	}

	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField, "case id is required", nil))
		return
	}

	sc, alreadyClosed, err := h.cases.Close(r.Context(), caseID, actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if !alreadyClosed {
		newVal, _ := json.Marshal(map[string]any{
			"status":             sc.Status,
			"reopen_deadline_at": sc.ReopenDeadlineAt,
		})
		h.writeAudit(r.Context(), actor, types.AuditActionSupportCaseClosed,
			caseID, "support_case", nil, newVal)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CloseCaseResponse{
		Case:          sc,
		AlreadyClosed: alreadyClosed,
	}})
}

// ReopenSupportCase handles POST /v1/admin/support-cases/{caseID}/reopen.
// Reopening is only allowed while the reopen window is still open.
func (h *AdminHandler) ReopenSupportCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing, "Authentication required", nil))
		return
	}

	if err := h.guard.Authorize(r.Context(), &actor, actionAdminCaseReopen); err != nil {
		core.Error(w, r, err)
		return
	}

	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField, "case id is required", nil))
		return
	}

	sc, err := h.cases.Reopen(r.Context(), caseID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	newVal, _ := json.Marshal(map[string]any{"status": sc.Status})
	h.writeAudit(r.Context(), actor, types.AuditActionSupportCaseReopened,
		caseID, "support_case", nil, newVal)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CloseCaseResponse{Case: sc}})
}

// writeAudit records the audit entry. Audit failures are logged, never
// surfaced: the admin action itself already succeeded.
func (h *AdminHandler) writeAudit(ctx context.Context, actor types.Actor, action, resourceID, resourceType string, oldVal, newVal json.RawMessage) {
	event := types.AuditEvent{
		ID:           uuid.NewString(),
		Actor:        actor,
		Action:       action,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		OldValue:     oldVal,
		NewValue:     newVal,
		Timestamp:    h.clock.Now(),
	}
	if err := h.audit.Log(ctx, event); err != nil {
		h.logger.WarnContext(ctx, "failed to write audit log entry",
			"action", action,
			"resource_id", resourceID,
			"error", err,
		)
	}
}

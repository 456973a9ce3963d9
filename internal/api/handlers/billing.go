// Package handlers contains the HTTP handler implementations for the
// wardrobe billing API.
//
// This file implements the customer-facing billing surface: Stripe portal
// sessions, invoice history, the resolved subscription view, and the
// read-only usage snapshot.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wardrobe/internal/billing"
	"wardrobe/internal/config"
	"wardrobe/internal/core"
	"wardrobe/internal/types"
)

// --- Service Interfaces ---
//
// These interfaces are defined locally: the handler file states the service
// contract it consumes and implementations are injected via the constructor.
// This avoids coupling to concrete types and enables test mocking.

// BillingService abstracts interactions with the payment provider (Stripe).
type BillingService interface {
	// CreatePortalSession generates a URL for self-serve billing management.
	CreatePortalSession(ctx context.Context, userID string, returnURL string) (portalURL string, err error)

	// ListInvoices retrieves billing history directly from the provider.
	ListInvoices(ctx context.Context, userID string, params types.ListInvoicesParams) ([]*types.Invoice, types.PageInfo, error)
}

// EntitlementsSource computes the effective per-request entitlements.
type EntitlementsSource interface {
	Resolve(ctx context.Context, userID string) (types.Entitlements, error)
}

// UsageMeter is the read-only metering surface the billing handler needs.
type UsageMeter interface {
	Snapshot(ctx context.Context, ent types.Entitlements, userID string) (map[types.MetricKey]types.UsageLimitStatus, error)
}

// --- Request/Response Models ---

// PortalResponse is the response for POST /v1/billing/portal-session.
type PortalResponse struct {
	PortalURL string `json:"portal_url"`
}

// SubscriptionResponse is the response for GET /v1/billing/subscription.
// Plan identity is exposed through the customer-facing label, never the
// internal plan code.
type SubscriptionResponse struct {
	PlanLabel         types.PlanLabelCode `json:"plan_label"`
	PlanName          string              `json:"plan_name"`
	Interval          types.PlanInterval  `json:"interval"`
	BillingState      types.BillingState  `json:"billing_state,omitempty"`
	IsPaid            bool                `json:"is_paid"`
	HasBillingAccount bool                `json:"has_billing_account"`
	Period            types.BillingPeriod `json:"period"`
	RenewalAt         *string             `json:"renewal_at,omitempty"`
}

// UsageResponse is the response for GET /v1/usage.
type UsageResponse struct {
	PlanLabel types.PlanLabelCode                        `json:"plan_label"`
	Period    types.BillingPeriod                        `json:"period"`
	Metrics   map[types.MetricKey]types.UsageLimitStatus `json:"metrics"`
}

// --- Billing Handler ---

// BillingHandler handles synchronous billing reads and portal creation
// initiated by the user.
type BillingHandler struct {
	service      BillingService
	entitlements EntitlementsSource
	meter        UsageMeter
	appURL       string
	logger       *slog.Logger
}

// NewBillingHandler creates a BillingHandler with the provided dependencies.
func NewBillingHandler(
	svc BillingService,
	entitlements EntitlementsSource,
	meter UsageMeter,
	cfg *config.Config,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}

	appURL := ""
	if cfg != nil {
		appURL = cfg.Server.AppURL
	}

	return &BillingHandler{
		service:      svc,
		entitlements: entitlements,
		meter:        meter,
		appURL:       appURL,
		logger:       l,
	}
}

// RegisterRoutes mounts all billing and usage endpoints. The parent router
// already applied the auth middleware.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Post("/billing/portal-session", h.CreatePortalSession)
		r.Get("/billing/invoices", h.GetInvoices)
		r.Get("/billing/subscription", h.GetSubscription)
		r.Get("/usage", h.GetUsage)
	})
}

// CreatePortalSession handles POST /v1/billing/portal-session.
//
// The return URL is constructed server-side from the configured app URL so
// client input can never cause an open redirect.
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing,
			"Authentication required",
			nil,
		))
		return
	}

	returnURL := h.appURL + "/settings/billing"

	portalURL, err := h.service.CreatePortalSession(r.Context(), actor.UserID, returnURL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create portal session",
			"user_id", actor.UserID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PortalResponse{PortalURL: portalURL}})
}

// GetInvoices handles GET /v1/billing/invoices with cursor pagination.
func (h *BillingHandler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing,
			"Authentication required",
			nil,
		))
		return
	}

	params := types.ListInvoicesParams{
		Limit: 20,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 100 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationFailed,
				"limit must be a number between 1 and 100",
				nil,
			))
			return
		}
		params.Limit = limit
	}

	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		params.Cursor = cursor
	}

	invoices, pageInfo, err := h.service.ListInvoices(r.Context(), actor.UserID, params)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: invoices,
		Meta: &types.ResponseMeta{
			Pagination: &pageInfo,
		},
	})
}

// GetSubscription handles GET /v1/billing/subscription. The response is the
// resolved entitlements view, so a past_due subscriber still reads as their
// paid plan while an unpaid one reads as free.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing,
			"Authentication required",
			nil,
		))
		return
	}

	ent, err := h.entitlements.Resolve(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	label, err := billing.ToLabelCode(ent.EffectivePlanCode)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := SubscriptionResponse{
		PlanLabel:         label,
		PlanName:          billing.DisplayName(ent.EffectivePlanCode),
		Interval:          ent.EffectiveInterval,
		BillingState:      ent.BillingState,
		IsPaid:            ent.IsPaid,
		HasBillingAccount: ent.HasBillingAccount,
		Period:            ent.Period,
	}
	if ent.RenewalAt != nil {
		s := ent.RenewalAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.RenewalAt = &s
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// GetUsage handles GET /v1/usage. The snapshot is read-only and never
// consumes quota.
func (h *BillingHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing,
			"Authentication required",
			nil,
		))
		return
	}

	ent, err := h.entitlements.Resolve(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	metrics, err := h.meter.Snapshot(r.Context(), ent, actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	label, err := billing.ToLabelCode(ent.EffectivePlanCode)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := UsageResponse{
		PlanLabel: label,
		Period:    ent.Period,
		Metrics:   metrics,
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

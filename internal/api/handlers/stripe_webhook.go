package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"wardrobe/internal/config"
	"wardrobe/internal/core"
	"wardrobe/internal/external"
	"wardrobe/internal/types"
)

// maxWebhookBodyBytes caps the webhook payload. Stripe events are small;
// anything larger is rejected before signature verification.
const maxWebhookBodyBytes = 64 * 1024

// SubscriptionSyncer applies provider events to the local subscription cache.
type SubscriptionSyncer interface {
	ApplyEvent(ctx context.Context, sub *types.Subscription, eventAt time.Time) error
	MarkPastDue(ctx context.Context, stripeCustomerID string, eventAt time.Time) error
}

// StripeWebhookHandler receives and processes Stripe webhook events.
type StripeWebhookHandler struct {
	verifier      external.WebhookVerifier
	subscriptions SubscriptionSyncer
	webhookSecret types.SecretString
	logger        *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	subscriptions SubscriptionSyncer,
	cfg *config.Config,
	l *slog.Logger,
) *StripeWebhookHandler {
	if l == nil {
		l = slog.Default()
	}

	var secret types.SecretString
	if cfg != nil {
		secret = cfg.Billing.StripeWebhookSecret
	}

	return &StripeWebhookHandler{
		verifier:      verifier,
		subscriptions: subscriptions,
		webhookSecret: secret,
		logger:        l,
	}
}

// RegisterRoutes mounts the webhook endpoint. The path is exempt from session
// auth; the signature check is the authentication.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.HandleWebhook)
}

// stripeWebhookEvent is the envelope Stripe posts. Only the fields we route
// on are decoded here; the object payload is deferred to per-type structs.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeSubscriptionObj mirrors the subset of Stripe's subscription object
// the sync needs.
type stripeSubscriptionObj struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              stripeSubItems    `json:"items"`
}

type stripeSubItems struct {
	Data []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"data"`
}

// stripeInvoiceObj mirrors the subset of Stripe's invoice object used for
// payment failure handling.
type stripeInvoiceObj struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// HandleWebhook handles POST /v1/webhooks/stripe.
//
// Signature or payload failures return an error status so Stripe retries.
// Once the event is verified and parsed, processing failures still return
// 200: Stripe's retry would replay the identical event into the same failure,
// and the optimistic lock makes a later, newer event self-healing.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationFailed, "unable to read request body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := h.verifier.Verify(payload, sigHeader, h.webhookSecret.Unmask()); err != nil {
		h.logger.WarnContext(ctx, "webhook signature verification failed", "error", err)
		core.Error(w, r, err)
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WarnContext(ctx, "failed to parse webhook event", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationFailed, "malformed event payload", err))
		return
	}

	if err := h.routeEvent(ctx, &event); err != nil {
		h.logger.ErrorContext(ctx, "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"received": true}})
}

func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventStripeSubCreated, external.EventStripeSubUpdated:
		return h.handleSubscriptionChange(ctx, event, false)
	case external.EventStripeSubDeleted:
		return h.handleSubscriptionChange(ctx, event, true)
	case external.EventStripePaymentFailed:
		return h.handlePaymentFailed(ctx, event)
	default:
		h.logger.DebugContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type)
		return nil
	}
}

func (h *StripeWebhookHandler) handleSubscriptionChange(ctx context.Context, event *stripeWebhookEvent, deleted bool) error {
	var obj stripeSubscriptionObj
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return types.NewAppError(types.ErrCodeValidationFailed,
			"malformed subscription object", err)
	}

	userID := obj.Metadata["user_id"]
	if userID == "" {
		// Checkout is configured to stamp user_id into subscription metadata.
		// An event without it cannot be attributed, so it is dropped loudly.
		h.logger.ErrorContext(ctx, "subscription event missing user_id metadata",
			"event_id", event.ID,
			"stripe_subscription_id", obj.ID,
		)
		return nil
	}

	priceID := ""
	if len(obj.Items.Data) > 0 {
		priceID = obj.Items.Data[0].Price.ID
	}
	planCode, interval := external.PlanForPriceID(priceID)

	state := mapStripeStatus(obj.Status)
	if deleted {
		state = types.BillingCanceled
	}

	sub := &types.Subscription{
		UserID:               userID,
		StripeCustomerID:     obj.Customer,
		StripeSubscriptionID: obj.ID,
		PlanCode:             planCode,
		Interval:             interval,
		State:                state,
		CurrentPeriodStart:   time.Unix(obj.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:     time.Unix(obj.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:    obj.CancelAtPeriodEnd,
	}

	return h.subscriptions.ApplyEvent(ctx, sub, eventTimestamp(event))
}

func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, event *stripeWebhookEvent) error {
	var obj stripeInvoiceObj
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return types.NewAppError(types.ErrCodeValidationFailed,
			"malformed invoice object", err)
	}
	if obj.Customer == "" {
		h.logger.WarnContext(ctx, "payment failure event without customer",
			"event_id", event.ID)
		return nil
	}
	return h.subscriptions.MarkPastDue(ctx, obj.Customer, eventTimestamp(event))
}

// mapStripeStatus converts Stripe's subscription status into the local
// billing state. Unknown statuses fail closed to unpaid.
func mapStripeStatus(status string) types.BillingState {
	switch status {
	case "active":
		return types.BillingActive
	case "trialing":
		return types.BillingTrialing
	case "past_due":
		return types.BillingPastDue
	case "canceled":
		return types.BillingCanceled
	case "unpaid", "incomplete", "incomplete_expired", "paused":
		return types.BillingUnpaid
	default:
		return types.BillingUnpaid
	}
}

// eventTimestamp returns the event's creation time for optimistic locking.
// A missing timestamp falls back to now so the event still applies.
func eventTimestamp(event *stripeWebhookEvent) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return time.Now().UTC()
}

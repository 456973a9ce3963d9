package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"wardrobe/internal/core"
	"wardrobe/internal/types"
)

// GenerationMeter reserves quota for metered actions. The reservation must
// happen before the action runs so concurrent requests cannot overshoot the
// plan limit.
type GenerationMeter interface {
	Reserve(ctx context.Context, ent types.Entitlements, userID string, metric types.MetricKey, incrementBy int64) (types.ReservationResult, error)
}

// GenerationStore persists completed generation records.
type GenerationStore interface {
	Record(ctx context.Context, gen *types.OutfitGeneration) error
}

// GenerateOutfitRequest is the request body for POST /v1/outfits/generate.
type GenerateOutfitRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=2000"`
	Style  string `json:"style" validate:"omitempty,max=100"`
}

// GenerateOutfitResponse is the success payload. Remaining reflects the
// quota left after this generation was counted.
type GenerateOutfitResponse struct {
	Generation *types.OutfitGeneration `json:"generation"`
	Remaining  int64                   `json:"remaining"`
	Limit      types.Limit             `json:"limit"`
}

// OutfitsHandler handles AI outfit generation requests.
type OutfitsHandler struct {
	entitlements EntitlementsSource
	meter        GenerationMeter
	store        GenerationStore
	validator    *core.Validator
	clock        types.Clock
	logger       *slog.Logger
}

// NewOutfitsHandler creates an OutfitsHandler with the provided dependencies.
func NewOutfitsHandler(
	entitlements EntitlementsSource,
	meter GenerationMeter,
	store GenerationStore,
	v *core.Validator,
	clock types.Clock,
	l *slog.Logger,
) *OutfitsHandler {
	if l == nil {
		l = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &OutfitsHandler{
		entitlements: entitlements,
		meter:        meter,
		store:        store,
		validator:    v,
		clock:        clock,
		logger:       l,
	}
}

// RegisterRoutes mounts the outfit generation endpoint.
func (h *OutfitsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/outfits/generate", h.Generate)
}

// Generate handles POST /v1/outfits/generate.
//
// The quota slot is reserved before any work happens. When the limit is
// exhausted the meter returns a quota error carrying limit, remaining and
// reset_at details, and no generation record is written.
func (h *OutfitsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSessionMissing,
			"Authentication required",
			nil,
		))
		return
	}

	var req GenerateOutfitRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	ent, err := h.entitlements.Resolve(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.meter.Reserve(r.Context(), ent, actor.UserID, types.MetricAIGenerationsMonthly, 1)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	gen := &types.OutfitGeneration{
		ID:        uuid.NewString(),
		UserID:    actor.UserID,
		Prompt:    req.Prompt,
		Style:     req.Style,
		PeriodKey: ent.Period.Key,
		CreatedAt: h.clock.Now(),
	}

	if err := h.store.Record(r.Context(), gen); err != nil {
		// The quota slot is already consumed. Surface the storage error; the
		// counter is not rolled back because a retried request takes a fresh
		// slot and overshooting by one is preferable to unmetered retries.
		h.logger.ErrorContext(r.Context(), "failed to record generation after reservation",
			"user_id", actor.UserID,
			"generation_id", gen.ID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	remaining := int64(0)
	if res.Limit.IsUnlimited() {
		remaining = -1
	} else if int64(res.Limit) > res.Count {
		remaining = int64(res.Limit) - res.Count
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: GenerateOutfitResponse{
		Generation: gen,
		Remaining:  remaining,
		Limit:      res.Limit,
	}})
}

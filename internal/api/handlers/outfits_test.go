package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardrobe/internal/core"
	"wardrobe/internal/types"
)

type mockGenerationMeter struct {
	reserveFn func(ctx context.Context, ent types.Entitlements, userID string, metric types.MetricKey, incrementBy int64) (types.ReservationResult, error)

	calls      int
	lastMetric types.MetricKey
}

func (m *mockGenerationMeter) Reserve(ctx context.Context, ent types.Entitlements, userID string, metric types.MetricKey, incrementBy int64) (types.ReservationResult, error) {
	m.calls++
	m.lastMetric = metric
	if m.reserveFn != nil {
		return m.reserveFn(ctx, ent, userID, metric, incrementBy)
	}
	return types.ReservationResult{Allowed: true, Count: 1, Limit: 7, ResetAt: testPeriod().End}, nil
}

type mockGenerationStore struct {
	recordFn func(ctx context.Context, gen *types.OutfitGeneration) error

	lastRecorded *types.OutfitGeneration
}

func (m *mockGenerationStore) Record(ctx context.Context, gen *types.OutfitGeneration) error {
	m.lastRecorded = gen
	if m.recordFn != nil {
		return m.recordFn(ctx, gen)
	}
	return nil
}

func newOutfitsTestRouter(ent *mockEntitlements, meter *mockGenerationMeter, store *mockGenerationStore) chi.Router {
	h := NewOutfitsHandler(ent, meter, store,
		core.NewValidator(testLogger()), handlerClock{now: handlerNow}, testLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func generateRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/outfits/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return withActor(req, userActor())
}

func TestGenerate_Success(t *testing.T) {
	meter := &mockGenerationMeter{}
	store := &mockGenerationStore{}
	r := newOutfitsTestRouter(&mockEntitlements{}, meter, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, generateRequest(`{"prompt": "rainy commute, smart casual", "style": "minimal"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, types.MetricAIGenerationsMonthly, meter.lastMetric)

	require.NotNil(t, store.lastRecorded)
	assert.Equal(t, "user_1", store.lastRecorded.UserID)
	assert.Equal(t, "rainy commute, smart casual", store.lastRecorded.Prompt)
	assert.Equal(t, types.PeriodKey("2026-02-01"), store.lastRecorded.PeriodKey)
	assert.Equal(t, handlerNow, store.lastRecorded.CreatedAt)
	assert.NotEmpty(t, store.lastRecorded.ID)

	var body struct {
		Data GenerateOutfitResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(6), body.Data.Remaining)
	assert.Equal(t, types.Limit(7), body.Data.Limit)
	require.NotNil(t, body.Data.Generation)
	assert.Equal(t, store.lastRecorded.ID, body.Data.Generation.ID)
}

func TestGenerate_QuotaExhausted(t *testing.T) {
	resetAt := testPeriod().End
	meter := &mockGenerationMeter{
		reserveFn: func(_ context.Context, _ types.Entitlements, _ string, _ types.MetricKey, _ int64) (types.ReservationResult, error) {
			return types.ReservationResult{}, types.NewAppErrorWithDetails(
				types.ErrCodeQuotaExceeded,
				"monthly generation limit reached",
				nil,
				map[string]any{"limit": int64(7), "remaining": int64(0), "reset_at": resetAt},
			)
		},
	}
	store := &mockGenerationStore{}
	r := newOutfitsTestRouter(&mockEntitlements{}, meter, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, generateRequest(`{"prompt": "beach wedding guest"}`))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Nil(t, store.lastRecorded, "denied request must not write a generation record")

	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, string(types.ErrCodeQuotaExceeded), body.Error.Code)
	assert.Equal(t, float64(7), body.Error.Details["limit"])
	assert.Equal(t, float64(0), body.Error.Details["remaining"])
}

func TestGenerate_UnlimitedPlan(t *testing.T) {
	meter := &mockGenerationMeter{
		reserveFn: func(_ context.Context, _ types.Entitlements, _ string, _ types.MetricKey, _ int64) (types.ReservationResult, error) {
			return types.ReservationResult{Allowed: true, Limit: types.LimitUnlimited}, nil
		},
	}
	r := newOutfitsTestRouter(&mockEntitlements{}, meter, &mockGenerationStore{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, generateRequest(`{"prompt": "capsule wardrobe refresh"}`))

	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Data GenerateOutfitResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(-1), body.Data.Remaining)
}

func TestGenerate_ValidationFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing prompt", `{"style": "minimal"}`},
		{"empty prompt", `{"prompt": ""}`},
		{"prompt too long", `{"prompt": "` + strings.Repeat("a", 2001) + `"}`},
		{"unknown field", `{"prompt": "x", "colour": "red"}`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meter := &mockGenerationMeter{}
			r := newOutfitsTestRouter(&mockEntitlements{}, meter, &mockGenerationStore{})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, generateRequest(tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 0, meter.calls, "invalid request must not consume quota")
		})
	}
}

func TestGenerate_StorageFailureAfterReservation(t *testing.T) {
	meter := &mockGenerationMeter{}
	store := &mockGenerationStore{
		recordFn: func(_ context.Context, _ *types.OutfitGeneration) error {
			return types.NewAppError(types.ErrCodeInternalDB, "insert failed", errors.New("conn reset"))
		},
	}
	r := newOutfitsTestRouter(&mockEntitlements{}, meter, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, generateRequest(`{"prompt": "office holiday party"}`))

	// The reservation happened and is deliberately not rolled back; the
	// client sees the storage error.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, meter.calls)
}

func TestGenerate_Unauthenticated(t *testing.T) {
	meter := &mockGenerationMeter{}
	r := newOutfitsTestRouter(&mockEntitlements{}, meter, &mockGenerationStore{})

	req := httptest.NewRequest(http.MethodPost, "/outfits/generate",
		strings.NewReader(`{"prompt": "x"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, meter.calls)
}

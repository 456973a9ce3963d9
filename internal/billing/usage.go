package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wardrobe/internal/types"
)

// CounterStore is the persistence contract for usage counters. Reserve must
// be a single atomic check-and-increment at the storage layer: under
// concurrent callers for the same (userID, metric, periodKey), the stored
// count never exceeds limit and no unit of capacity is granted twice.
type CounterStore interface {
	Reserve(ctx context.Context, userID string, metric types.MetricKey, periodKey types.PeriodKey,
		limit types.Limit, incrementBy int64, resetAt time.Time) (types.ReservationResult, error)

	// Status is read-only; it must never create or mutate a counter row.
	Status(ctx context.Context, userID string, metric types.MetricKey, periodKey types.PeriodKey,
		limit types.Limit) (types.UsageLimitStatus, error)
}

// Meter is the metering entry point request handlers use: it resolves the
// window and limit for a metric from the user's entitlements and delegates the
// atomic reservation to the counter store. Unlimited metrics never touch the
// store.
type Meter struct {
	catalog *Catalog
	store   CounterStore
	clock   types.Clock
	logger  *slog.Logger
}

// NewMeter creates a Meter over the given catalog and counter store.
func NewMeter(catalog *Catalog, store CounterStore, clock types.Clock, logger *slog.Logger) *Meter {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{
		catalog: catalog,
		store:   store,
		clock:   clock,
		logger:  logger,
	}
}

// Reserve atomically consumes incrementBy units of metric for the user, under
// the limits of the already-resolved entitlements. On denial the returned
// error is a quota_exceeded AppError carrying limit/remaining/reset details;
// the result still reports the current count.
func (m *Meter) Reserve(ctx context.Context, ent types.Entitlements, userID string,
	metric types.MetricKey, incrementBy int64) (types.ReservationResult, error) {

	if incrementBy <= 0 {
		return types.ReservationResult{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"incrementBy must be positive",
			nil,
		)
	}

	limit, err := m.catalog.UsageLimit(ent, metric)
	if err != nil {
		return types.ReservationResult{}, err
	}

	periodKey, resetAt := m.windowFor(ent, metric)

	if limit.IsUnlimited() {
		// Nothing to count against; the reservation trivially succeeds.
		return types.ReservationResult{
			Allowed: true,
			Limit:   limit,
			ResetAt: resetAt,
		}, nil
	}

	res, err := m.store.Reserve(ctx, userID, metric, periodKey, limit, incrementBy, resetAt)
	if err != nil {
		return types.ReservationResult{}, err
	}

	if !res.Allowed {
		remaining := int64(limit) - res.Count
		if remaining < 0 {
			remaining = 0
		}
		return res, types.NewAppErrorWithDetails(
			types.ErrCodeQuotaExceeded,
			fmt.Sprintf("quota exhausted for %s", metric),
			nil,
			map[string]any{
				"metric":    string(metric),
				"limit":     int64(limit),
				"remaining": remaining,
				"reset_at":  res.ResetAt,
			},
		)
	}
	return res, nil
}

// Status returns the read-only quota view for one metric without consuming
// capacity.
func (m *Meter) Status(ctx context.Context, ent types.Entitlements, userID string,
	metric types.MetricKey) (types.UsageLimitStatus, error) {

	limit, err := m.catalog.UsageLimit(ent, metric)
	if err != nil {
		return types.UsageLimitStatus{}, err
	}

	periodKey, resetAt := m.windowFor(ent, metric)

	if limit.IsUnlimited() {
		return types.UsageLimitStatus{
			Limit:     limit,
			Remaining: -1,
			ResetAt:   resetAt,
		}, nil
	}

	status, err := m.store.Status(ctx, userID, metric, periodKey, limit)
	if err != nil {
		return types.UsageLimitStatus{}, err
	}
	if status.ResetAt.IsZero() {
		status.ResetAt = resetAt
	}
	return status, nil
}

// Snapshot returns the quota view for every metered metric of the plan,
// populating ent.Usage lazily. Metrics the plan disables are included with a
// zero limit so clients can render them as unavailable.
func (m *Meter) Snapshot(ctx context.Context, ent types.Entitlements, userID string) (map[types.MetricKey]types.UsageLimitStatus, error) {
	out := make(map[types.MetricKey]types.UsageLimitStatus, len(metricSchema))
	for metric := range metricSchema {
		status, err := m.Status(ctx, ent, userID, metric)
		if err != nil {
			return nil, err
		}
		out[metric] = status
	}
	return out, nil
}

// windowFor derives the counter identity and reset time for a metric under
// the resolved entitlements.
func (m *Meter) windowFor(ent types.Entitlements, metric types.MetricKey) (types.PeriodKey, time.Time) {
	kind, ok := m.catalog.Window(metric)
	if !ok {
		// UsageLimit already rejected unknown metrics; this branch guards the
		// internal call order.
		kind = WindowMonthly
	}
	switch kind {
	case WindowHourly:
		w := types.HourlyWindow(m.clock.Now())
		return w.Key, w.End
	case WindowLifetime:
		return types.PeriodLifetime, types.ResetAtForKey(types.PeriodLifetime, ent.Period)
	default:
		return ent.Period.Key, ent.Period.End
	}
}

package types

import (
	"fmt"
	"time"
)

// PeriodKey is the stable identifier of a usage window. Calendar keys are
// produced by MonthlyPeriodKey/HourlyPeriodKey; PeriodLifetime is the only
// non-calendar key. Constructing keys by string concatenation is forbidden --
// a typo'd key would silently open a fresh, never-reset counter.
type PeriodKey string

// PeriodLifetime keys counters that never reset, such as one-time trial
// allowances.
const PeriodLifetime PeriodKey = "lifetime"

// lifetimeResetAt is the far-future sentinel stored as reset_at for lifetime
// counters.
var lifetimeResetAt = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// IsLifetime reports whether the key identifies a never-resetting window.
func (k PeriodKey) IsLifetime() bool { return k == PeriodLifetime }

// MonthlyPeriodKey returns the calendar key for the window starting at start,
// e.g. "2026-02-01".
func MonthlyPeriodKey(start time.Time) PeriodKey {
	return PeriodKey(start.UTC().Format("2006-01-02"))
}

// HourlyPeriodKey returns the key for the hour window containing t,
// e.g. "2026-02-01T15".
func HourlyPeriodKey(t time.Time) PeriodKey {
	return PeriodKey(t.UTC().Format("2006-01-02T15"))
}

// ResetAtForKey derives the reset time for a counter keyed by k within the
// given period. Lifetime counters get the far-future sentinel.
func ResetAtForKey(k PeriodKey, period BillingPeriod) time.Time {
	if k.IsLifetime() {
		return lifetimeResetAt
	}
	return period.End
}

// HourlyWindow returns the clock-hour window containing now.
func HourlyWindow(now time.Time) BillingPeriod {
	start := now.UTC().Truncate(time.Hour)
	return BillingPeriod{
		Start: start,
		End:   start.Add(time.Hour),
		Key:   HourlyPeriodKey(start),
	}
}

// AnchoredMonthlyWindow returns the rolling month window containing now,
// anchored to the day-of-month of anchor (typically account creation). The
// anchor day is clamped to the last day of short months, so an account created
// on the 31st resets on the 28th/29th/30th where needed.
func AnchoredMonthlyWindow(anchor, now time.Time) BillingPeriod {
	anchor = anchor.UTC()
	now = now.UTC()

	// Month stepping is done on the first of the month, never on the clamped
	// boundary itself: AddDate on a clamped day 29-31 normalizes across short
	// months (Mar 31 minus one month is Feb 31, which Go renders as Mar 3) and
	// would land back in the month it started from.
	day := anchor.Day()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := monthlyBoundary(first.Year(), first.Month(), day, anchor)
	if start.After(now) {
		first = first.AddDate(0, -1, 0)
		start = monthlyBoundary(first.Year(), first.Month(), day, anchor)
	}
	next := first.AddDate(0, 1, 0)
	end := monthlyBoundary(next.Year(), next.Month(), day, anchor)

	return BillingPeriod{
		Start: start,
		End:   end,
		Key:   MonthlyPeriodKey(start),
	}
}

// monthlyBoundary builds the window boundary for the given year/month,
// clamping the anchor day to the month's length.
func monthlyBoundary(year int, month time.Month, day int, anchor time.Time) time.Time {
	last := daysIn(year, month)
	if day > last {
		day = last
	}
	return time.Date(year, month, day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), 0, time.UTC)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PeriodFromSubscription builds the billing window from provider-reported
// cycle boundaries.
func PeriodFromSubscription(start, end time.Time) BillingPeriod {
	return BillingPeriod{
		Start: start.UTC(),
		End:   end.UTC(),
		Key:   MonthlyPeriodKey(start),
	}
}

// String implements fmt.Stringer for log output.
func (p BillingPeriod) String() string {
	return fmt.Sprintf("%s [%s, %s)", p.Key,
		p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}

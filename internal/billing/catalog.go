// Package billing implements the plan catalog, plan-label mapping, the
// entitlements resolver, and the usage metering service.
package billing

import (
	"fmt"

	"wardrobe/internal/types"
)

// WindowKind classifies how a metric's usage window resets.
type WindowKind string

const (
	WindowMonthly  WindowKind = "monthly"
	WindowHourly   WindowKind = "hourly"
	WindowLifetime WindowKind = "lifetime"
)

// metricSchema is the closed set of known metrics and their window kinds.
// UsageLimit rejects keys outside this set so that a typo'd metric can never
// resolve to a silently-infinite quota.
var metricSchema = map[types.MetricKey]WindowKind{
	types.MetricAIGenerationsMonthly: WindowMonthly,
	types.MetricOutfitChecksHourly:   WindowHourly,
	types.MetricTrialGenerations:     WindowLifetime,
	types.MetricWardrobeItems:        WindowLifetime,
}

type planKey struct {
	code     types.PlanCode
	interval types.PlanInterval
}

// planDefaults defines the registered plan combinations. The free tier exists
// only on the month interval; paid tiers are sold monthly and yearly with the
// same limits.
//
//	| Plan | AI gens/mo | Checks/hr | Trial gens | Items |
//	|------|-----------|-----------|------------|-------|
//	| Free | 3         | 5         | 3          | 50    |
//	| Plus | 7         | 30        | 3          | 500   |
//	| Pro  | unlimited | 120       | 3          | unlimited |
var planDefaults = map[planKey]types.PlanDefinition{
	{types.PlanFree, types.IntervalMonth}: {
		Code:        types.PlanFree,
		Interval:    types.IntervalMonth,
		DisplayName: "Starter",
		PriceCents:  0,
		Limits: map[types.MetricKey]types.Limit{
			types.MetricAIGenerationsMonthly: 3,
			types.MetricOutfitChecksHourly:   5,
			types.MetricTrialGenerations:     3,
			types.MetricWardrobeItems:        50,
		},
		Features: map[types.FeatureKey]bool{
			types.FeatureAIStylist:       false,
			types.FeatureClosetAnalytics: false,
			types.FeaturePrioritySupport: false,
		},
	},
	{types.PlanPlus, types.IntervalMonth}: plusPlan(types.IntervalMonth, 900),
	{types.PlanPlus, types.IntervalYear}:  plusPlan(types.IntervalYear, 9000),
	{types.PlanPro, types.IntervalMonth}:  proPlan(types.IntervalMonth, 1900),
	{types.PlanPro, types.IntervalYear}:   proPlan(types.IntervalYear, 19000),
}

func plusPlan(interval types.PlanInterval, price int64) types.PlanDefinition {
	return types.PlanDefinition{
		Code:        types.PlanPlus,
		Interval:    interval,
		DisplayName: "Plus",
		PriceCents:  price,
		Limits: map[types.MetricKey]types.Limit{
			types.MetricAIGenerationsMonthly: 7,
			types.MetricOutfitChecksHourly:   30,
			types.MetricTrialGenerations:     3,
			types.MetricWardrobeItems:        500,
		},
		Features: map[types.FeatureKey]bool{
			types.FeatureAIStylist:       true,
			types.FeatureClosetAnalytics: true,
			types.FeaturePrioritySupport: false,
		},
	}
}

func proPlan(interval types.PlanInterval, price int64) types.PlanDefinition {
	return types.PlanDefinition{
		Code:        types.PlanPro,
		Interval:    interval,
		DisplayName: "Pro",
		PriceCents:  price,
		Limits: map[types.MetricKey]types.Limit{
			types.MetricAIGenerationsMonthly: types.LimitUnlimited,
			types.MetricOutfitChecksHourly:   120,
			types.MetricTrialGenerations:     3,
			types.MetricWardrobeItems:        types.LimitUnlimited,
		},
		Features: map[types.FeatureKey]bool{
			types.FeatureAIStylist:       true,
			types.FeatureClosetAnalytics: true,
			types.FeaturePrioritySupport: true,
		},
	}
}

// Catalog is the static registry of plan definitions. It is immutable after
// construction; GetDefinition hands out deep copies so callers cannot mutate
// the registry through the returned maps.
type Catalog struct {
	defs map[planKey]types.PlanDefinition
}

// NewCatalog returns a Catalog backed by the hardcoded plan definitions.
func NewCatalog() *Catalog {
	defs := make(map[planKey]types.PlanDefinition, len(planDefaults))
	for k, v := range planDefaults {
		defs[k] = v
	}
	return &Catalog{defs: defs}
}

// Definition returns the plan registered for (code, interval).
// Fails with not_found_plan for unregistered combinations.
func (c *Catalog) Definition(code types.PlanCode, interval types.PlanInterval) (types.PlanDefinition, error) {
	def, ok := c.defs[planKey{code, interval}]
	if !ok {
		return types.PlanDefinition{}, types.NewAppError(
			types.ErrCodeNotFoundPlan,
			fmt.Sprintf("no plan registered for code=%s interval=%s", code, interval),
			nil,
		)
	}
	return copyDefinition(def), nil
}

// UsageLimit looks up the cap for metric under the resolved entitlements.
// Unknown metric keys fail with validation_unknown_metric rather than
// defaulting, so a typo cannot introduce an unmetered action.
func (c *Catalog) UsageLimit(ent types.Entitlements, metric types.MetricKey) (types.Limit, error) {
	if _, known := metricSchema[metric]; !known {
		return 0, types.NewAppError(
			types.ErrCodeValidationUnknownMetric,
			fmt.Sprintf("metric %q is not part of the catalog schema", metric),
			nil,
		)
	}
	limit, ok := ent.Plan.Limits[metric]
	if !ok {
		// Known metric missing from a plan's table: treat as disabled.
		return 0, nil
	}
	return limit, nil
}

// Window returns the window kind for a known metric. The boolean is false for
// keys outside the schema.
func (c *Catalog) Window(metric types.MetricKey) (WindowKind, bool) {
	kind, ok := metricSchema[metric]
	return kind, ok
}

// copyDefinition deep-copies a definition so the registry stays immutable.
func copyDefinition(def types.PlanDefinition) types.PlanDefinition {
	limits := make(map[types.MetricKey]types.Limit, len(def.Limits))
	for k, v := range def.Limits {
		limits[k] = v
	}
	features := make(map[types.FeatureKey]bool, len(def.Features))
	for k, v := range def.Features {
		features[k] = v
	}
	def.Limits = limits
	def.Features = features
	return def
}

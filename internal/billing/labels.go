package billing

import (
	"fmt"

	"wardrobe/internal/types"
)

// Plan codes and label codes diverge only for the free tier, which is marketed
// as "Starter". Every component that renders or parses a plan name must route
// through these functions; comparing against display strings directly is
// forbidden.

var codeToLabel = map[types.PlanCode]types.PlanLabelCode{
	types.PlanFree: types.LabelStarter,
	types.PlanPlus: types.LabelPlus,
	types.PlanPro:  types.LabelPro,
}

var labelToCode = map[types.PlanLabelCode]types.PlanCode{
	types.LabelStarter: types.PlanFree,
	types.LabelPlus:    types.PlanPlus,
	types.LabelPro:     types.PlanPro,
}

var displayNames = map[types.PlanCode]string{
	types.PlanFree: "Starter",
	types.PlanPlus: "Plus",
	types.PlanPro:  "Pro",
}

// ToLabelCode translates an internal plan code to its user-facing label code.
func ToLabelCode(code types.PlanCode) (types.PlanLabelCode, error) {
	label, ok := codeToLabel[code]
	if !ok {
		return "", types.NewAppError(
			types.ErrCodeNotFoundPlan,
			fmt.Sprintf("unknown plan code %q", code),
			nil,
		)
	}
	return label, nil
}

// FromLabelCode is the exact inverse of ToLabelCode.
func FromLabelCode(label types.PlanLabelCode) (types.PlanCode, error) {
	code, ok := labelToCode[label]
	if !ok {
		return "", types.NewAppError(
			types.ErrCodeNotFoundPlan,
			fmt.Sprintf("unknown plan label %q", label),
			nil,
		)
	}
	return code, nil
}

// IsFreePlan reports whether the code is the free tier.
func IsFreePlan(code types.PlanCode) bool {
	return code == types.PlanFree
}

// DisplayName returns the fixed human-readable name for a plan code.
// Unknown codes render as the free tier's name rather than leaking the raw
// code to users.
func DisplayName(code types.PlanCode) string {
	if name, ok := displayNames[code]; ok {
		return name
	}
	return displayNames[types.PlanFree]
}

package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardrobe/internal/types"
)

func TestToLabelCode_FreeIsMarketedAsStarter(t *testing.T) {
	label, err := ToLabelCode(types.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, types.LabelStarter, label)
}

func TestLabelCodeRoundTrip(t *testing.T) {
	for _, code := range []types.PlanCode{types.PlanFree, types.PlanPlus, types.PlanPro} {
		label, err := ToLabelCode(code)
		require.NoError(t, err)
		back, err := FromLabelCode(label)
		require.NoError(t, err)
		assert.Equal(t, code, back)
	}
}

func TestFromLabelCode_FreeIsNotALabel(t *testing.T) {
	// "free" is internal vocabulary; the public label is "starter".
	_, err := FromLabelCode(types.PlanLabelCode("free"))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundPlan, appErr.Code)
}

func TestDisplayName_UnknownCodeFallsBackToStarter(t *testing.T) {
	assert.Equal(t, "Starter", DisplayName(types.PlanCode("enterprise")))
}

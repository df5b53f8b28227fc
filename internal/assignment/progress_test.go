package assignment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		completed, total float64
		want             int
	}{
		{5, 25, 20},
		{25, 25, 100},
		{30, 25, 100},
		{0, 25, 0},
		{-3, 25, 0},
		{1, 3, 33},
		{2, 3, 67},
		{0.5, 200, 0},
		{1, 200, 1},
		{5, 0, 0},
		{5, -10, 0},
		{math.NaN(), 10, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.completed, tt.total), "%v/%v", tt.completed, tt.total)
	}
}

func TestApplyProgress(t *testing.T) {
	target := newTarget("tiles", 25, "m2", 0)
	require.Equal(t, 100, target.TargetCompletion)

	next, changed, err := applyProgress(target, ProgressReport{Delta: ptr(5), Unit: "m2"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, Progress{Completed: 5, Total: 25, Percentage: 20}, next)

	target.Progress = next
	_, changed, err = applyProgress(target, ProgressReport{Delta: ptr(0), Unit: "m2"})
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = applyProgress(target, ProgressReport{Delta: ptr(-1), Unit: "m2"})
	assert.Error(t, err)

	next, _, err = applyProgress(target, ProgressReport{Delta: ptr(-10), Unit: "m2", Correction: true})
	require.NoError(t, err)
	assert.Equal(t, Progress{Completed: 0, Total: 25, Percentage: 0}, next)

	_, _, err = applyProgress(target, ProgressReport{Delta: ptr(1), Absolute: ptr(1), Unit: "m2"})
	assert.Error(t, err)

	_, _, err = applyProgress(target, ProgressReport{Absolute: ptr(math.Inf(1)), Unit: "m2"})
	assert.Error(t, err)
}

func TestNewTarget_PercentWhenNoQuantity(t *testing.T) {
	target := newTarget("inspect", 0, "", 80)
	assert.Equal(t, PercentUnit, target.Unit)
	assert.InDelta(t, 100.0, target.Progress.Total, 1e-9)
	assert.Equal(t, 80, target.TargetCompletion)

	retarget(&target, 50)
	assert.InDelta(t, 100.0, target.Progress.Total, 1e-9, "percent targets keep their denominator")
}

func ptr(v float64) *float64 { return &v }

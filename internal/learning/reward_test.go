package learning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRewardCalculator_Validation(t *testing.T) {
	_, err := NewRewardCalculator(nil, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidReward)

	_, err = NewRewardCalculator([]RewardComponent{{Metric: "x", Weight: 1, Scale: 0}}, -1, 1)
	assert.ErrorIs(t, err, ErrInvalidReward)

	_, err = NewRewardCalculator([]RewardComponent{{Weight: 1, Scale: 1}}, -1, 1)
	assert.ErrorIs(t, err, ErrInvalidReward)

	calc, err := NewRewardCalculator(nil, -1, 1)
	require.NoError(t, err)
	assert.Zero(t, calc.Compute(map[string]float64{"x": 1}))
}

func TestRewardCalculator_Compute(t *testing.T) {
	calc, err := NewRewardCalculator([]RewardComponent{
		{Metric: "accuracy", Weight: 1, Target: 1, Scale: 0.1},
		{Metric: "latency_ms", Weight: -0.5, Target: 50, Scale: 20},
	}, -1, 1)
	require.NoError(t, err)

	// Both at target: (1 - 0.5) / 1.5.
	got := calc.Compute(map[string]float64{"accuracy": 1, "latency_ms": 50})
	assert.InDelta(t, 0.5/1.5, got, 1e-9)

	// Missing and non-finite metrics contribute nothing.
	got = calc.Compute(map[string]float64{"accuracy": 1, "latency_ms": math.NaN()})
	assert.InDelta(t, 1/1.5, got, 1e-9)

	got = calc.Compute(map[string]float64{})
	assert.Zero(t, got)
}

func TestRewardCalculator_Clips(t *testing.T) {
	calc, err := NewRewardCalculator([]RewardComponent{
		{Metric: "score", Weight: 1, Target: 0, Scale: 1},
	}, -0.2, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 0.5, calc.Compute(map[string]float64{"score": 0}))
	lo, hi := calc.ClipRange()
	assert.Equal(t, -0.2, lo)
	assert.Equal(t, 0.5, hi)
}

func TestRewardCalculator_Breakdown(t *testing.T) {
	calc, err := NewRewardCalculator([]RewardComponent{
		LinearComponent("passed", 2),
		{Metric: "missing", Weight: 1, Target: 1, Scale: 1},
	}, -1, 1)
	require.NoError(t, err)

	b := calc.Breakdown(map[string]float64{"passed": 1})
	require.Len(t, b.Components, 2)
	assert.InDelta(t, 2.0, b.RawTotal, 1e-9)
	assert.InDelta(t, 2.0/3.0, b.Normalized, 1e-9)
	assert.InDelta(t, 2.0/3.0, b.Total, 1e-9)

	require.NotNil(t, b.Components[0].Observed)
	assert.Equal(t, 1.0, *b.Components[0].Observed)
	assert.Nil(t, b.Components[1].Observed)
	assert.Zero(t, b.Components[1].Contribution)
}

func TestRewardCalculator_AddRemove(t *testing.T) {
	calc, err := NewRewardCalculator(nil, -1, 1)
	require.NoError(t, err)

	require.NoError(t, calc.AddComponent(LinearComponent("a", 1)))
	require.NoError(t, calc.AddComponent(LinearComponent("a", 0.5)))
	require.NoError(t, calc.AddComponent(LinearComponent("b", 1)))
	assert.Error(t, calc.AddComponent(RewardComponent{Metric: "c", Scale: -1}))
	assert.Len(t, calc.Components(), 3)

	assert.True(t, calc.RemoveComponent("a"))
	assert.False(t, calc.RemoveComponent("a"))
	assert.Equal(t, []RewardComponent{LinearComponent("b", 1)}, calc.Components())
}

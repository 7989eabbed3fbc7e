package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorpulse/internal/types"
)

func TestExtract_Empty(t *testing.T) {
	_, ok := Extract(nil)
	assert.False(t, ok)

	_, ok = ExtractSamples([]types.SensorSample{})
	assert.False(t, ok)
}

func TestExtract_BasicStatistics(t *testing.T) {
	fs, ok := Extract([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.True(t, ok)

	assert.InDelta(t, 5.0, fs.Mean, 1e-9)
	assert.Equal(t, 2.0, fs.Min)
	assert.Equal(t, 9.0, fs.Max)
	assert.InDelta(t, 4.0, fs.Variance, 1e-9)
	assert.InDelta(t, 2.0, fs.StdDev, 1e-9)
	assert.Equal(t, 8, fs.SampleCount)
	require.NotNil(t, fs.Skewness)
}

func TestExtract_Invariants(t *testing.T) {
	inputs := [][]float64{
		{1},
		{-3, 7},
		{0, 0, 0},
		{9.81, 9.79, 10.2, 12.5, 8.4},
		{-100, 50, 1e6, -1e6, 3},
	}

	for _, in := range inputs {
		fs, ok := Extract(in)
		require.True(t, ok)
		assert.LessOrEqual(t, fs.Min, fs.Mean+1e-9, "min <= mean for %v", in)
		assert.LessOrEqual(t, fs.Mean, fs.Max+1e-9, "mean <= max for %v", in)
		assert.GreaterOrEqual(t, fs.Variance, 0.0, "variance >= 0 for %v", in)
	}
}

func TestExtract_SkewnessOnlyAboveTwoSamples(t *testing.T) {
	fs, _ := Extract([]float64{1, 2})
	assert.Nil(t, fs.Skewness)

	fs, _ = Extract([]float64{1, 2, 3})
	require.NotNil(t, fs.Skewness)
	assert.InDelta(t, 0.0, *fs.Skewness, 1e-9)

	fs, _ = Extract([]float64{5, 5, 5, 5})
	require.NotNil(t, fs.Skewness)
	assert.Equal(t, 0.0, *fs.Skewness, "constant window has zero skewness")

	fs, _ = Extract([]float64{1, 1, 1, 10})
	require.NotNil(t, fs.Skewness)
	assert.Greater(t, *fs.Skewness, 0.0, "long right tail is positively skewed")
}

func TestTrendOf(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		direction types.TrendDirection
		pct       float64
	}{
		{"doubling", []float64{10, 10, 10, 20, 20, 20}, types.TrendIncreasing, 100},
		{"halving", []float64{20, 20, 20, 10, 10, 10}, types.TrendDecreasing, 50},
		{"flat", []float64{4, 4, 4, 4}, types.TrendStable, 0},
		{"small change", []float64{100, 100, 103, 103}, types.TrendStable, 3},
		{"single value", []float64{7}, types.TrendStable, 0},
		{"zero first half", []float64{0, 0, 5, 5}, types.TrendStable, 0},
		// Odd length: first half is [10, 10, 10], second half is [20, 20].
		{"odd length", []float64{10, 10, 10, 20, 20}, types.TrendIncreasing, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := TrendOf(tt.values)
			assert.Equal(t, tt.direction, tr.Direction)
			assert.InDelta(t, tt.pct, tr.PercentChange, 1e-9)
		})
	}
}

func TestTrendOf_MirroredDeviationsFlipDirection(t *testing.T) {
	const base = 50.0
	devs := []float64{-5, -4, -6, 6, 5, 4}

	up := make([]float64, len(devs))
	down := make([]float64, len(devs))
	for i, d := range devs {
		up[i] = base + d
		down[i] = base - d
	}

	assert.Equal(t, types.TrendIncreasing, TrendOf(up).Direction)
	assert.Equal(t, types.TrendDecreasing, TrendOf(down).Direction)
}

func TestTrendOf_StableSurvivesShift(t *testing.T) {
	values := []float64{100, 101, 102, 102, 103, 101}
	require.Equal(t, types.TrendStable, TrendOf(values).Direction)

	shifted := make([]float64, len(values))
	for i, v := range values {
		shifted[i] = v + 10
	}
	assert.Equal(t, types.TrendStable, TrendOf(shifted).Direction)
}

func TestSummarize(t *testing.T) {
	t0 := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	samples := []types.SensorSample{
		{Kind: types.SensorLight, Timestamp: t0.Add(2 * time.Minute), Value: 300},
		{Kind: types.SensorLight, Timestamp: t0, Value: 100},
		{Kind: types.SensorLight, Timestamp: t0.Add(time.Minute), Value: 200},
	}

	sum, ok := Summarize(types.SensorLight, samples)
	require.True(t, ok)
	assert.Equal(t, types.SensorLight, sum.Kind)
	assert.True(t, sum.WindowStart.Equal(t0))
	assert.True(t, sum.WindowEnd.Equal(t0.Add(2*time.Minute)))
	assert.InDelta(t, 200.0, sum.Features.Mean, 1e-9)

	_, ok = Summarize(types.SensorLight, nil)
	assert.False(t, ok)
}

func TestStdDevMatchesVariance(t *testing.T) {
	values := []float64{1, 3, 5, 7}
	assert.InDelta(t, math.Sqrt(Variance(values)), StdDev(values), 1e-12)
	assert.Equal(t, 0.0, Variance(nil))
}

// Package features computes per-window scalar summaries (mean, spread,
// skewness and a half-over-half trend) from buffer snapshots.
//
// Every function here is pure: inputs are never modified and results depend
// only on the values passed in.
package features

import (
	"math"

	"sensorpulse/internal/types"
)

// StableTrendThreshold is the percent change below which a window is
// classified as stable.
const StableTrendThreshold = 5.0

// Extract summarizes values. It returns false for an empty input; callers
// must treat that as an insufficient-data skip.
func Extract(values []float64) (types.FeatureSet, bool) {
	n := len(values)
	if n == 0 {
		return types.FeatureSet{}, false
	}

	mean := Mean(values)
	lo, hi := MinMax(values)
	variance := varianceAround(values, mean)
	std := math.Sqrt(variance)

	fs := types.FeatureSet{
		Mean:        mean,
		Min:         lo,
		Max:         hi,
		Variance:    variance,
		StdDev:      std,
		Trend:       TrendOf(values),
		SampleCount: n,
	}
	if n > 2 {
		skew := skewnessAround(values, mean, std)
		fs.Skewness = &skew
	}
	return fs, true
}

// ExtractSamples projects samples to their scalar values and extracts them.
func ExtractSamples(samples []types.SensorSample) (types.FeatureSet, bool) {
	return Extract(types.SampleValues(samples))
}

// Summarize builds a FeatureSummary for one kind's snapshot. The window bounds
// are the earliest and latest sample timestamps.
func Summarize(kind types.SensorKind, samples []types.SensorSample) (types.FeatureSummary, bool) {
	fs, ok := ExtractSamples(samples)
	if !ok {
		return types.FeatureSummary{}, false
	}
	start, end := samples[0].Timestamp, samples[0].Timestamp
	for _, s := range samples[1:] {
		if s.Timestamp.Before(start) {
			start = s.Timestamp
		}
		if s.Timestamp.After(end) {
			end = s.Timestamp
		}
	}
	return types.FeatureSummary{
		Kind:        kind,
		WindowStart: start,
		WindowEnd:   end,
		Features:    fs,
	}, true
}

// Mean returns the arithmetic mean, 0 for an empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// MinMax returns the smallest and largest value, (0, 0) for an empty input.
func MinMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Variance is the population variance (mean of squared deviations).
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return varianceAround(values, Mean(values))
}

// StdDev is the square root of Variance.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

func varianceAround(values []float64, mean float64) float64 {
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(values))
}

// skewnessAround is the mean of cubed standardized deviations. A constant
// window has no spread, so its skewness is 0.
func skewnessAround(values []float64, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		z := (v - mean) / std
		sum += z * z * z
	}
	return sum / float64(len(values))
}

// TrendOf splits values at the midpoint (the first half takes the extra
// element when the length is odd) and compares the half means.
func TrendOf(values []float64) types.Trend {
	stable := types.Trend{Direction: types.TrendStable}
	if len(values) < 2 {
		return stable
	}

	mid := (len(values) + 1) / 2
	m1 := Mean(values[:mid])
	m2 := Mean(values[mid:])
	if m1 == 0 {
		return stable
	}

	pct := math.Abs(m2-m1) / math.Abs(m1) * 100
	switch {
	case pct < StableTrendThreshold:
		return types.Trend{Direction: types.TrendStable, PercentChange: pct}
	case m2 > m1:
		return types.Trend{Direction: types.TrendIncreasing, PercentChange: pct}
	default:
		return types.Trend{Direction: types.TrendDecreasing, PercentChange: pct}
	}
}

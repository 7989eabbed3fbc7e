// Package pattern compares recent and historical windows of sensor data and
// folds movement samples into a BehaviorPattern.
//
// Deviation scores are normalized relative differences in [0,1]. A window
// with no data contributes no deviation: an empty comparison is an
// insufficient-data outcome, not a change in behavior.
package pattern

import (
	"math"
	"time"

	"sensorpulse/internal/features"
	"sensorpulse/internal/types"
)

// Night hours are [22,24) and [0,6].
const (
	nightStartHour = 22
	nightEndHour   = 6
)

// IsNightHour reports whether hour h (0-23) falls in the nighttime band.
func IsNightHour(h int) bool {
	return h >= nightStartHour || h <= nightEndHour
}

// RelativeDeviation is |a-b| / max(|a|,|b|), clamped to [0,1]. Two zero
// averages yield 0.
func RelativeDeviation(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return clamp01(math.Abs(a-b) / denom)
}

// ActivityDeviation compares the averages of two windows.
func ActivityDeviation(recent, previous []float64) float64 {
	if len(recent) == 0 || len(previous) == 0 {
		return 0
	}
	return RelativeDeviation(features.Mean(recent), features.Mean(previous))
}

// SleepDeviation compares the nighttime-only averages of two windows.
func SleepDeviation(recent, previous []types.Point, loc *time.Location) float64 {
	return ActivityDeviation(
		types.Values(filterHours(recent, loc, IsNightHour)),
		types.Values(filterHours(previous, loc, IsNightHour)),
	)
}

// RoutineDeviation compares the daytime-only averages of two windows.
func RoutineDeviation(recent, previous []types.Point, loc *time.Location) float64 {
	isDay := func(h int) bool { return !IsNightHour(h) }
	return ActivityDeviation(
		types.Values(filterHours(recent, loc, isDay)),
		types.Values(filterHours(previous, loc, isDay)),
	)
}

func filterHours(points []types.Point, loc *time.Location, keep func(int) bool) []types.Point {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]types.Point, 0, len(points))
	for _, p := range points {
		if keep(p.Timestamp.In(loc).Hour()) {
			out = append(out, p)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

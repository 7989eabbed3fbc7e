package pattern

import (
	"time"

	"sensorpulse/internal/features"
	"sensorpulse/internal/types"
)

// sleepMovementCeiling is the nighttime average movement at which sleep
// quality bottoms out.
const sleepMovementCeiling = 5.0

// EstimateSleepQuality scores the nighttime portion of points in [0,1], where
// 1 means no movement at all. It returns 0.5 when points hold no nighttime
// data.
func EstimateSleepQuality(points []types.Point, loc *time.Location) float64 {
	night := filterHours(points, loc, IsNightHour)
	if len(night) == 0 {
		return 0.5
	}
	return 1 - clamp01(features.Mean(types.Values(night))/sleepMovementCeiling)
}

package timeseries

import (
	"time"

	"sensorpulse/internal/types"
)

// HourlyProfile is the per-hour-of-day mean of a series. Counts[h] is zero
// when no point fell into hour h, in which case Means[h] is meaningless.
type HourlyProfile struct {
	Means  [24]float64
	Counts [24]int
}

// Has reports whether hour h has data.
func (p HourlyProfile) Has(h int) bool {
	return h >= 0 && h < 24 && p.Counts[h] > 0
}

// CoveredHours returns how many hours of the day have at least one point.
func (p HourlyProfile) CoveredHours() int {
	n := 0
	for _, c := range p.Counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// Profile buckets points by hour of day in loc.
func Profile(points []types.Point, loc *time.Location) HourlyProfile {
	if loc == nil {
		loc = time.UTC
	}
	var sums [24]float64
	var p HourlyProfile
	for _, pt := range points {
		h := pt.Timestamp.In(loc).Hour()
		sums[h] += pt.Value
		p.Counts[h]++
	}
	for h := range sums {
		if p.Counts[h] > 0 {
			p.Means[h] = sums[h] / float64(p.Counts[h])
		}
	}
	return p
}

// HourlyAverages profiles kind's history over [now-lookback, now).
func (s *Store) HourlyAverages(kind types.SensorKind, lookback time.Duration, now time.Time, loc *time.Location) HourlyProfile {
	return Profile(s.Slice(kind, lookback, 0, now), loc)
}

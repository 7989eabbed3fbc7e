// Package timeseries keeps the long-horizon (days) history the engine uses
// for hour-of-day baselines and week-over-week comparisons.
//
// Each sensor kind has its own bounded series. Bounds are enforced in two
// places: Record drops the oldest points once a series exceeds MaxPoints, and
// Cleanup removes every point older than MaxAge.
package timeseries

import (
	"fmt"
	"sync"
	"time"

	"sensorpulse/internal/types"
)

// Defaults used when the configuration leaves a bound unset.
const (
	DefaultMaxPoints = 1000
	DefaultMaxAge    = 30 * 24 * time.Hour
	Week             = 7 * 24 * time.Hour
)

// series stores timestamps and values as parallel arrays in arrival order.
type series struct {
	mu         sync.RWMutex
	timestamps []time.Time
	values     []float64
}

// Store is the bounded per-kind history.
type Store struct {
	maxPoints int
	maxAge    time.Duration

	mu     sync.RWMutex
	series map[types.SensorKind]*series

	// cleanupMu serializes Cleanup so a sweep never overlaps another.
	cleanupMu sync.Mutex
}

// NewStore creates a Store. maxPoints and maxAge must be positive.
func NewStore(maxPoints int, maxAge time.Duration) (*Store, error) {
	if maxPoints <= 0 {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid,
			fmt.Sprintf("time series max points must be positive, got %d", maxPoints), nil)
	}
	if maxAge <= 0 {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid,
			fmt.Sprintf("time series max age must be positive, got %s", maxAge), nil)
	}
	return &Store{
		maxPoints: maxPoints,
		maxAge:    maxAge,
		series:    make(map[types.SensorKind]*series),
	}, nil
}

// MaxPoints returns the per-kind point bound.
func (s *Store) MaxPoints() int { return s.maxPoints }

// MaxAge returns the retention age bound.
func (s *Store) MaxAge() time.Duration { return s.maxAge }

func (s *Store) get(kind types.SensorKind) (*series, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ser, ok := s.series[kind]
	return ser, ok
}

func (s *Store) getOrCreate(kind types.SensorKind) *series {
	if ser, ok := s.get(kind); ok {
		return ser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ser, ok := s.series[kind]; ok {
		return ser
	}
	ser := &series{}
	s.series[kind] = ser
	return ser
}

// Record appends a point and drops the oldest entries beyond MaxPoints.
func (s *Store) Record(kind types.SensorKind, value float64, ts time.Time) {
	ser := s.getOrCreate(kind)

	ser.mu.Lock()
	defer ser.mu.Unlock()

	ser.timestamps = append(ser.timestamps, ts)
	ser.values = append(ser.values, value)

	if over := len(ser.values) - s.maxPoints; over > 0 {
		n := copy(ser.timestamps, ser.timestamps[over:])
		ser.timestamps = ser.timestamps[:n]
		n = copy(ser.values, ser.values[over:])
		ser.values = ser.values[:n]
	}
}

// Cleanup removes every point with timestamp < now-MaxAge across all kinds and
// returns how many were removed.
func (s *Store) Cleanup(now time.Time) int {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()

	cutoff := now.Add(-s.maxAge)

	s.mu.RLock()
	all := make([]*series, 0, len(s.series))
	for _, ser := range s.series {
		all = append(all, ser)
	}
	s.mu.RUnlock()

	removed := 0
	for _, ser := range all {
		ser.mu.Lock()
		kept := 0
		for i, ts := range ser.timestamps {
			if ts.Before(cutoff) {
				continue
			}
			ser.timestamps[kept] = ts
			ser.values[kept] = ser.values[i]
			kept++
		}
		removed += len(ser.timestamps) - kept
		ser.timestamps = ser.timestamps[:kept]
		ser.values = ser.values[:kept]
		ser.mu.Unlock()
	}
	return removed
}

// Len returns the number of points held for kind.
func (s *Store) Len(kind types.SensorKind) int {
	ser, ok := s.get(kind)
	if !ok {
		return 0
	}
	ser.mu.RLock()
	defer ser.mu.RUnlock()
	return len(ser.values)
}

// TotalLen returns the number of points held across all kinds.
func (s *Store) TotalLen() int {
	total := 0
	for _, k := range types.AllSensorKinds {
		total += s.Len(k)
	}
	return total
}

// Points returns a copy of kind's series in arrival order.
func (s *Store) Points(kind types.SensorKind) []types.Point {
	return s.filter(kind, func(time.Time) bool { return true })
}

// Slice returns the points of kind with timestamp in
// [now-offset-period, now-offset). A kind with no history yields an empty
// slice.
func (s *Store) Slice(kind types.SensorKind, period, offset time.Duration, now time.Time) []types.Point {
	end := now.Add(-offset)
	start := end.Add(-period)
	return s.filter(kind, func(ts time.Time) bool {
		return !ts.Before(start) && ts.Before(end)
	})
}

// Range returns the points of kind with timestamp in [start, end).
func (s *Store) Range(kind types.SensorKind, start, end time.Time) []types.Point {
	return s.filter(kind, func(ts time.Time) bool {
		return !ts.Before(start) && ts.Before(end)
	})
}

func (s *Store) filter(kind types.SensorKind, keep func(time.Time) bool) []types.Point {
	ser, ok := s.get(kind)
	if !ok {
		return []types.Point{}
	}
	ser.mu.RLock()
	defer ser.mu.RUnlock()

	out := make([]types.Point, 0, len(ser.values))
	for i, ts := range ser.timestamps {
		if keep(ts) {
			out = append(out, types.Point{Timestamp: ts, Value: ser.values[i]})
		}
	}
	return out
}

// WeekOverWeek returns the points of the trailing 7 days and of the 7 days
// before that.
func (s *Store) WeekOverWeek(kind types.SensorKind, now time.Time) (thisWeek, lastWeek []types.Point) {
	return s.Slice(kind, Week, 0, now), s.Slice(kind, Week, Week, now)
}

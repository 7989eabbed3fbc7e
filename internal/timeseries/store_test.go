package timeseries

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorpulse/internal/types"
)

var t0 = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, maxPoints int, maxAge time.Duration) *Store {
	t.Helper()
	s, err := NewStore(maxPoints, maxAge)
	require.NoError(t, err)
	return s
}

func TestNewStore_RejectsInvalidBounds(t *testing.T) {
	_, err := NewStore(0, time.Hour)
	assert.True(t, types.IsCode(err, types.ErrCodeConfigInvalid))

	_, err = NewStore(10, 0)
	assert.True(t, types.IsCode(err, types.ErrCodeConfigInvalid))
}

func TestStore_RecordBoundedByMaxPoints(t *testing.T) {
	s := newTestStore(t, 5, DefaultMaxAge)

	for i := 0; i < 6; i++ {
		s.Record(types.SensorAccelerometer, float64(i), t0.Add(time.Duration(i)*time.Minute))
	}

	require.Equal(t, 5, s.Len(types.SensorAccelerometer))
	pts := s.Points(types.SensorAccelerometer)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, types.Values(pts), "oldest point is evicted first")
}

func TestStore_CleanupByAge(t *testing.T) {
	s := newTestStore(t, 100, 24*time.Hour)

	s.Record(types.SensorLight, 1, t0.Add(-48*time.Hour))
	s.Record(types.SensorLight, 2, t0.Add(-25*time.Hour))
	s.Record(types.SensorLight, 3, t0.Add(-time.Hour))
	s.Record(types.SensorBattery, 90, t0.Add(-30*time.Hour))

	removed := s.Cleanup(t0)
	assert.Equal(t, 3, removed)
	assert.Equal(t, []float64{3}, types.Values(s.Points(types.SensorLight)))
	assert.Equal(t, 0, s.Len(types.SensorBattery))

	assert.Equal(t, 0, s.Cleanup(t0), "second sweep removes nothing")
}

func TestStore_SliceHalfOpenWindow(t *testing.T) {
	s := newTestStore(t, 100, DefaultMaxAge)

	s.Record(types.SensorAccelerometer, 1, t0.Add(-2*time.Hour))    // start boundary, included
	s.Record(types.SensorAccelerometer, 2, t0.Add(-90*time.Minute)) // inside
	s.Record(types.SensorAccelerometer, 3, t0.Add(-time.Hour))      // end boundary, excluded
	s.Record(types.SensorAccelerometer, 4, t0)

	got := s.Slice(types.SensorAccelerometer, time.Hour, time.Hour, t0)
	assert.Equal(t, []float64{1, 2}, types.Values(got))
}

func TestStore_MissingKindIsEmpty(t *testing.T) {
	s := newTestStore(t, 10, time.Hour)

	got := s.Slice(types.SensorProximity, time.Hour, 0, t0)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, s.Len(types.SensorProximity))
	assert.Empty(t, s.Points(types.SensorProximity))
}

func TestStore_WeekOverWeek(t *testing.T) {
	s := newTestStore(t, 1000, DefaultMaxAge)
	for d := 0; d < 14; d++ {
		v := 1.0
		if d < 7 {
			v = 2.0
		}
		s.Record(types.SensorAccelerometer, v, t0.Add(-time.Duration(d)*24*time.Hour-time.Hour))
	}

	this, last := s.WeekOverWeek(types.SensorAccelerometer, t0)
	assert.Len(t, this, 7)
	assert.Len(t, last, 7)
	for _, p := range this {
		assert.Equal(t, 2.0, p.Value)
	}
	for _, p := range last {
		assert.Equal(t, 1.0, p.Value)
	}
}

func TestStore_HourlyAverages(t *testing.T) {
	s := newTestStore(t, 1000, DefaultMaxAge)
	day := time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC)
	s.Record(types.SensorAccelerometer, 4, day.Add(9*time.Hour))
	s.Record(types.SensorAccelerometer, 6, day.Add(9*time.Hour+30*time.Minute))
	s.Record(types.SensorAccelerometer, 10, day.Add(18*time.Hour))

	p := s.HourlyAverages(types.SensorAccelerometer, 7*24*time.Hour, t0, time.UTC)
	assert.True(t, p.Has(9))
	assert.InDelta(t, 5.0, p.Means[9], 1e-9)
	assert.Equal(t, 2, p.Counts[9])
	assert.InDelta(t, 10.0, p.Means[18], 1e-9)
	assert.False(t, p.Has(3))
	assert.False(t, p.Has(24))
	assert.Equal(t, 2, p.CoveredHours())
}

func TestStore_ConcurrentRecordAndCleanup(t *testing.T) {
	s := newTestStore(t, 500, time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Record(types.SensorGyroscope, float64(i), t0)
				if i%50 == 0 {
					s.Cleanup(t0)
				}
				_ = s.Slice(types.SensorGyroscope, time.Hour, 0, t0.Add(time.Second))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, s.Len(types.SensorGyroscope))
	assert.Equal(t, 500, s.TotalLen())
}

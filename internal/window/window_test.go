package window

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorpulse/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func sampleAt(ts time.Time, v float64) types.SensorSample {
	return types.SensorSample{Kind: types.SensorLight, Timestamp: ts, Value: v, Raw: types.LightReading{Lux: v}}
}

func TestBuffer_EvictsOlderThanHorizon(t *testing.T) {
	clock := newClock()
	b := NewBuffer(types.SensorLight, 5*time.Second, clock.Now)

	now := clock.Now()
	b.Push(sampleAt(now.Add(-6*time.Second), 1))
	b.Push(sampleAt(now, 2))

	snap := b.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 2.0, snap[0].Value)
}

func TestBuffer_SnapshotFiltersWithoutMutating(t *testing.T) {
	clock := newClock()
	b := NewBuffer(types.SensorLight, 10*time.Second, clock.Now)

	b.Push(sampleAt(clock.Now(), 1))
	clock.Advance(11 * time.Second)

	assert.Empty(t, b.Snapshot())
	assert.Equal(t, 1, b.Len(), "snapshot must not evict")

	b.Push(sampleAt(clock.Now(), 2))
	assert.Equal(t, 1, b.Len(), "push evicts the aged sample")
}

func TestBuffer_LateSamplesKeepOrder(t *testing.T) {
	clock := newClock()
	b := NewBuffer(types.SensorLight, time.Minute, clock.Now)
	now := clock.Now()

	b.Push(sampleAt(now.Add(-10*time.Second), 1))
	b.Push(sampleAt(now, 3))
	b.Push(sampleAt(now.Add(-5*time.Second), 2))

	snap := b.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []float64{1, 2, 3}, types.SampleValues(snap))
}

func TestBuffer_LateSamplePastCutoffIsNotRetained(t *testing.T) {
	clock := newClock()
	b := NewBuffer(types.SensorLight, time.Minute, clock.Now)

	b.Push(sampleAt(clock.Now().Add(-2*time.Minute), 1))
	assert.Empty(t, b.Snapshot())
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	clock := newClock()
	b := NewBuffer(types.SensorLight, time.Minute, clock.Now)
	b.Push(sampleAt(clock.Now(), 1))

	snap := b.Snapshot()
	snap[0].Value = 99

	assert.Equal(t, 1.0, b.Snapshot()[0].Value)
}

func TestBuffer_ConcurrentPushAndSnapshot(t *testing.T) {
	clock := newClock()
	b := NewBuffer(types.SensorLight, time.Hour, clock.Now)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				b.Push(sampleAt(clock.Now(), float64(w*1000+i)))
				_ = b.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, b.Snapshot(), 1000)
}

func TestNewSet_RejectsInvalidHorizons(t *testing.T) {
	_, err := NewSet(0, nil, nil)
	assert.True(t, types.IsCode(err, types.ErrCodeConfigInvalid))

	_, err = NewSet(time.Minute, map[types.SensorKind]time.Duration{types.SensorLight: -time.Second}, nil)
	assert.True(t, types.IsCode(err, types.ErrCodeConfigInvalid))

	_, err = NewSet(time.Minute, map[types.SensorKind]time.Duration{"barometer": time.Second}, nil)
	assert.True(t, types.IsCode(err, types.ErrCodeConfigInvalid))
}

func TestSet_LazyBuffersAndHorizons(t *testing.T) {
	clock := newClock()
	s, err := NewSet(time.Minute, map[types.SensorKind]time.Duration{
		types.SensorAccelerometer: time.Hour,
	}, clock.Now)
	require.NoError(t, err)

	assert.Nil(t, s.Snapshot(types.SensorLight))
	assert.Empty(t, s.Kinds())

	s.Push(sampleAt(clock.Now(), 5))
	s.Push(types.SensorSample{Kind: types.SensorAccelerometer, Timestamp: clock.Now(), Value: 1})

	assert.Equal(t, []types.SensorKind{types.SensorAccelerometer, types.SensorLight}, s.Kinds())
	assert.Equal(t, time.Hour, s.HorizonFor(types.SensorAccelerometer))
	assert.Equal(t, time.Minute, s.HorizonFor(types.SensorLight))

	clock.Advance(2 * time.Minute)
	all := s.SnapshotAll()
	assert.Empty(t, all[types.SensorLight])
	assert.Len(t, all[types.SensorAccelerometer], 1)
}

// Package window implements the per-sensor sliding windows the engine
// analyzes. A Buffer holds the samples of one sensor kind that are no older
// than its horizon; a Set owns one Buffer per kind and creates them lazily.
//
// Buffers are mutated only by Push. Snapshot always returns a fresh copy so
// that analysis passes can run while ingestion continues.
package window

import (
	"sort"
	"sync"
	"time"

	"sensorpulse/internal/types"
)

// Clock returns the current time. Tests inject a simulated clock.
type Clock func() time.Time

// Buffer is a time-bounded, timestamp-ordered collection of samples for one
// sensor kind.
type Buffer struct {
	mu      sync.RWMutex
	kind    types.SensorKind
	horizon time.Duration
	now     Clock
	samples []types.SensorSample
}

// NewBuffer creates a Buffer. horizon must be positive; the Set validates this
// at construction.
func NewBuffer(kind types.SensorKind, horizon time.Duration, now Clock) *Buffer {
	if now == nil {
		now = time.Now
	}
	return &Buffer{
		kind:    kind,
		horizon: horizon,
		now:     now,
	}
}

// Kind returns the sensor kind this buffer holds.
func (b *Buffer) Kind() types.SensorKind { return b.kind }

// Horizon returns the maximum retained sample age.
func (b *Buffer) Horizon() time.Duration { return b.horizon }

// Push inserts s in timestamp order and evicts every sample older than the
// horizon. Late samples are accepted; a sample that is already past the
// cutoff is dropped by the eviction that follows its insertion.
func (b *Buffer) Push(s types.SensorSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.samples)
	if n == 0 || !s.Timestamp.Before(b.samples[n-1].Timestamp) {
		b.samples = append(b.samples, s)
	} else {
		i := sort.Search(n, func(i int) bool {
			return b.samples[i].Timestamp.After(s.Timestamp)
		})
		b.samples = append(b.samples, types.SensorSample{})
		copy(b.samples[i+1:], b.samples[i:])
		b.samples[i] = s
	}

	b.evictLocked(b.now().Add(-b.horizon))
}

// evictLocked drops the prefix of samples older than cutoff. Samples are kept
// sorted, so the retained suffix starts at the first in-horizon sample.
func (b *Buffer) evictLocked(cutoff time.Time) {
	i := sort.Search(len(b.samples), func(i int) bool {
		return !b.samples[i].Timestamp.Before(cutoff)
	})
	if i == 0 {
		return
	}
	// Shift instead of reslicing so the backing array does not grow without bound.
	remaining := copy(b.samples, b.samples[i:])
	clear(b.samples[remaining:])
	b.samples = b.samples[:remaining]
}

// Snapshot returns a copy of the samples that satisfy the horizon relative to
// now. The buffer itself is not modified.
func (b *Buffer) Snapshot() []types.SensorSample {
	cutoff := b.now().Add(-b.horizon)

	b.mu.RLock()
	defer b.mu.RUnlock()

	i := sort.Search(len(b.samples), func(i int) bool {
		return !b.samples[i].Timestamp.Before(cutoff)
	})
	out := make([]types.SensorSample, len(b.samples)-i)
	copy(out, b.samples[i:])
	return out
}

// Len returns the number of samples currently held, including any that
// have aged past the horizon since the last Push.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

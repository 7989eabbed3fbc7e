package window

import (
	"fmt"
	"sync"
	"time"

	"sensorpulse/internal/types"
)

// Set owns one Buffer per sensor kind. Buffers are created on the first Push
// for their kind.
type Set struct {
	mu             sync.RWMutex
	buffers        map[types.SensorKind]*Buffer
	horizons       map[types.SensorKind]time.Duration
	defaultHorizon time.Duration
	now            Clock
}

// NewSet validates the horizons and creates an empty Set. A zero or negative
// horizon is a configuration error.
func NewSet(defaultHorizon time.Duration, horizons map[types.SensorKind]time.Duration, now Clock) (*Set, error) {
	if defaultHorizon <= 0 {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid,
			fmt.Sprintf("default window horizon must be positive, got %s", defaultHorizon), nil)
	}
	own := make(map[types.SensorKind]time.Duration, len(horizons))
	for kind, h := range horizons {
		if !kind.Valid() {
			return nil, types.NewAppError(types.ErrCodeConfigInvalid,
				fmt.Sprintf("window horizon configured for unsupported sensor kind %q", kind), nil)
		}
		if h <= 0 {
			return nil, types.NewAppError(types.ErrCodeConfigInvalid,
				fmt.Sprintf("window horizon for %s must be positive, got %s", kind, h), nil)
		}
		own[kind] = h
	}
	if now == nil {
		now = time.Now
	}
	return &Set{
		buffers:        make(map[types.SensorKind]*Buffer),
		horizons:       own,
		defaultHorizon: defaultHorizon,
		now:            now,
	}, nil
}

// HorizonFor returns the configured horizon for kind.
func (s *Set) HorizonFor(kind types.SensorKind) time.Duration {
	if h, ok := s.horizons[kind]; ok {
		return h
	}
	return s.defaultHorizon
}

// Push routes the sample to its kind's buffer, creating it if needed.
func (s *Set) Push(sample types.SensorSample) {
	s.bufferFor(sample.Kind).Push(sample)
}

func (s *Set) bufferFor(kind types.SensorKind) *Buffer {
	s.mu.RLock()
	b, ok := s.buffers[kind]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buffers[kind]; ok {
		return b
	}
	b = NewBuffer(kind, s.HorizonFor(kind), s.now)
	s.buffers[kind] = b
	return b
}

// Snapshot returns a copy of kind's window, nil when the kind has not been
// seen yet.
func (s *Set) Snapshot(kind types.SensorKind) []types.SensorSample {
	s.mu.RLock()
	b, ok := s.buffers[kind]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return b.Snapshot()
}

// SnapshotAll returns copies of every known kind's window.
func (s *Set) SnapshotAll() map[types.SensorKind][]types.SensorSample {
	s.mu.RLock()
	buffers := make([]*Buffer, 0, len(s.buffers))
	for _, b := range s.buffers {
		buffers = append(buffers, b)
	}
	s.mu.RUnlock()

	out := make(map[types.SensorKind][]types.SensorSample, len(buffers))
	for _, b := range buffers {
		out[b.Kind()] = b.Snapshot()
	}
	return out
}

// Kinds returns the sensor kinds with a buffer, in types.AllSensorKinds order.
func (s *Set) Kinds() []types.SensorKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.SensorKind, 0, len(s.buffers))
	for _, k := range types.AllSensorKinds {
		if _, ok := s.buffers[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

package prediction

import (
	"sync"
	"time"

	"sensorpulse/internal/types"
)

type slot struct {
	state      types.PredictionState
	prediction types.Prediction
	pending    *types.Prediction
}

// Registry retains the latest emitted prediction of each kind and drives its
// lifecycle:
//
//	none -> candidate (Propose) -> emitted (Commit) -> expired (ValidUntil
//	passes) -> purged (Sweep)
//
// A new emission of a kind supersedes the retained one. All methods are safe
// for concurrent use and hand out copies only.
type Registry struct {
	mu    sync.RWMutex
	slots map[types.PredictionKind]*slot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[types.PredictionKind]*slot)}
}

func (r *Registry) slotFor(kind types.PredictionKind) *slot {
	s, ok := r.slots[kind]
	if !ok {
		s = &slot{state: types.PredictionStateNone}
		r.slots[kind] = s
	}
	return s
}

// Propose records p as the pending candidate of its kind, replacing any
// earlier uncommitted candidate.
func (r *Registry) Propose(p types.Prediction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := p.Clone()
	s := r.slotFor(p.Kind)
	s.pending = &c
}

// Commit promotes every pending candidate that is still valid at now to
// emitted and returns copies of them in AllPredictionKinds order. Candidates
// that expired before commit are dropped.
func (r *Registry) Commit(now time.Time) []types.Prediction {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []types.Prediction
	for _, kind := range types.AllPredictionKinds {
		s, ok := r.slots[kind]
		if !ok || s.pending == nil {
			continue
		}
		p := *s.pending
		s.pending = nil
		if !p.ValidAt(now) {
			continue
		}
		s.prediction = p
		s.state = types.PredictionStateEmitted
		out = append(out, p.Clone())
	}
	return out
}

// Admit proposes and commits candidates in one step.
func (r *Registry) Admit(candidates []types.Prediction, now time.Time) []types.Prediction {
	for _, p := range candidates {
		r.Propose(p)
	}
	return r.Commit(now)
}

// Active returns copies of the retained predictions whose ValidUntil is after
// now, in AllPredictionKinds order.
func (r *Registry) Active(now time.Time) []types.Prediction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Prediction, 0, len(r.slots))
	for _, kind := range types.AllPredictionKinds {
		s, ok := r.slots[kind]
		if !ok || s.state != types.PredictionStateEmitted || !s.prediction.ValidAt(now) {
			continue
		}
		out = append(out, s.prediction.Clone())
	}
	return out
}

// Sweep purges every retained prediction that is no longer valid at now and
// returns how many were purged. Sweeping twice at the same now purges nothing
// the second time.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for _, s := range r.slots {
		if s.state != types.PredictionStateEmitted || s.prediction.ValidAt(now) {
			continue
		}
		s.state = types.PredictionStatePurged
		s.prediction = types.Prediction{}
		purged++
	}
	return purged
}

// State reports the lifecycle position of kind at now.
func (r *Registry) State(kind types.PredictionKind, now time.Time) types.PredictionState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.slots[kind]
	if !ok {
		return types.PredictionStateNone
	}
	if s.pending != nil {
		return types.PredictionStateCandidate
	}
	if s.state == types.PredictionStateEmitted && !s.prediction.ValidAt(now) {
		return types.PredictionStateExpired
	}
	return s.state
}

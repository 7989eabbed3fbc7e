// Package broadcast fans values out to any number of subscribers over
// buffered channels.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"sensorpulse/internal/types"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Hub delivers every published value to every current subscriber. Delivery
// never blocks: a subscriber whose buffer is full misses the value and the
// drop is counted. A slow consumer never stalls the publisher or other
// subscribers.
type Hub[T any] struct {
	mu      sync.RWMutex
	subs    map[uint64]chan T
	nextID  uint64
	closed  bool
	buffer  int
	clone   func(T) T
	dropped atomic.Int64
	name    string
	logger  *slog.Logger
}

// Options configures a Hub.
type Options[T any] struct {
	// Name labels log lines.
	Name string
	// Buffer is the per-subscriber capacity. Defaults to DefaultBuffer.
	Buffer int
	// Clone, when set, gives each subscriber its own copy of a value.
	Clone  func(T) T
	Logger *slog.Logger
}

// NewHub creates an open Hub.
func NewHub[T any](opts Options[T]) *Hub[T] {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub[T]{
		subs:   make(map[uint64]chan T),
		buffer: opts.Buffer,
		clone:  opts.Clone,
		name:   opts.Name,
		logger: logger,
	}
}

// Subscription is one consumer's view of a Hub. C is closed when the
// subscription is cancelled or the hub is closed.
type Subscription[T any] struct {
	C <-chan T

	id   uint64
	hub  *Hub[T]
	once sync.Once
}

// Cancel detaches the subscription and closes C. It is safe to call more
// than once and after the hub has closed.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() { s.hub.remove(s.id) })
}

// Subscribe attaches a new consumer. It returns ErrEngineClosed once the hub
// has been closed.
func (h *Hub[T]) Subscribe() (*Subscription[T], error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, types.ErrEngineClosed
	}
	h.nextID++
	ch := make(chan T, h.buffer)
	h.subs[h.nextID] = ch
	return &Subscription[T]{C: ch, id: h.nextID, hub: h}, nil
}

func (h *Hub[T]) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish offers v to every subscriber and returns how many received it.
// Publishing to a closed hub delivers nothing.
func (h *Hub[T]) Publish(v T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0
	}
	delivered := 0
	for id, ch := range h.subs {
		value := v
		if h.clone != nil {
			value = h.clone(v)
		}
		select {
		case ch <- value:
			delivered++
		default:
			h.dropped.Add(1)
			h.logger.Warn("subscriber buffer full, dropping value", "hub", h.name, "subscriber", id)
		}
	}
	return delivered
}

// Close closes every subscriber channel and refuses new subscriptions.
// Closing twice is a no-op.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Len returns the number of current subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (h *Hub[T]) Dropped() int64 {
	return h.dropped.Load()
}

// Closed reports whether Close has been called.
func (h *Hub[T]) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

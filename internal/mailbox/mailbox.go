// Package mailbox provides the bounded, never-blocking queues that connect the
// watchers and the coordinator.
//
// Each selection kind has its own capacity. When a kind is full the oldest
// pending item of that kind is discarded in favour of the new one; items of the
// other kind are never touched. Clipboard semantics only care about the
// current value, so losing intermediate values under pressure is acceptable
// while blocking a protocol loop is not.
package mailbox

import (
	"context"
	"sync"

	"github.com/berrythewa/clipbridge/internal/types"
)

const DefaultDepth = 4

// Mailbox is safe for use by any number of producers and one consumer.
type Mailbox[T any] struct {
	mu      sync.Mutex
	depth   int
	kindOf  func(T) types.SelectionKind
	pending []T
	counts  map[types.SelectionKind]int
	dropped uint64
	ready   chan struct{}
}

// New creates a mailbox holding at most depth pending items per kind.
func New[T any](depth int, kindOf func(T) types.SelectionKind) *Mailbox[T] {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Mailbox[T]{
		depth:  depth,
		kindOf: kindOf,
		counts: make(map[types.SelectionKind]int, len(types.Kinds)),
		ready:  make(chan struct{}, 1),
	}
}

// ForUpdates is the mailbox shape used for watcher -> coordinator traffic.
func ForUpdates(depth int) *Mailbox[types.Update] {
	return New(depth, func(u types.Update) types.SelectionKind { return u.Kind })
}

// Push enqueues v and reports whether an older item of the same kind was dropped.
func (m *Mailbox[T]) Push(v T) bool {
	kind := m.kindOf(v)

	m.mu.Lock()
	dropped := false
	if m.counts[kind] >= m.depth {
		for i, p := range m.pending {
			if m.kindOf(p) == kind {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				m.counts[kind]--
				m.dropped++
				dropped = true
				break
			}
		}
	}
	m.pending = append(m.pending, v)
	m.counts[kind]++
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return dropped
}

// Pop removes the oldest pending item.
func (m *Mailbox[T]) Pop() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.pending) == 0 {
		return zero, false
	}
	v := m.pending[0]
	m.pending[0] = zero
	m.pending = m.pending[1:]
	m.counts[m.kindOf(v)]--
	return v, true
}

// Ready is signalled after every Push. A signal may be stale; callers drain
// with Pop until it reports false.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Recv blocks until an item is available or ctx is done.
func (m *Mailbox[T]) Recv(ctx context.Context) (T, error) {
	for {
		if v, ok := m.Pop(); ok {
			return v, nil
		}
		select {
		case <-m.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of pending items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Dropped returns how many items were discarded because their kind was full.
func (m *Mailbox[T]) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Package signal provides a single-slot "new data ready" handoff between
// pipeline stages.
package signal

import (
	"context"
	"sync"
	"sync/atomic"
)

// Signal is a binary signal with at most one pending permit. The permit
// carries the most recently raised payload: raising while a permit is still
// pending replaces the payload instead of queueing a second one.
//
// Any number of goroutines may Raise; consumers receive from C or call Wait.
type Signal[T any] struct {
	ch chan T

	mu        sync.Mutex // serialises raisers so a replace never blocks
	raised    atomic.Uint64
	coalesced atomic.Uint64
}

// New creates a Signal with no pending permit.
func New[T any]() *Signal[T] {
	return &Signal[T]{ch: make(chan T, 1)}
}

// Raise makes a permit available carrying v. It never blocks. It returns
// false when a pending permit was coalesced into this one.
func (s *Signal[T]) Raise(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.raised.Add(1)

	select {
	case s.ch <- v:
		return true
	default:
	}

	// A permit is pending. Drop it (unless the consumer just took it) and
	// publish the newer payload.
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
	s.coalesced.Add(1)
	return false
}

// C returns the channel a consumer receives permits from.
func (s *Signal[T]) C() <-chan T {
	return s.ch
}

// Wait blocks until a permit is available and consumes it.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	select {
	case v := <-s.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryWait consumes a pending permit without blocking.
func (s *Signal[T]) TryWait() (T, bool) {
	select {
	case v := <-s.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Pending reports whether a permit is waiting to be consumed.
func (s *Signal[T]) Pending() bool {
	return len(s.ch) > 0
}

// Raised returns how many times Raise was called.
func (s *Signal[T]) Raised() uint64 { return s.raised.Load() }

// Coalesced returns how many raises were merged into an already pending permit.
func (s *Signal[T]) Coalesced() uint64 { return s.coalesced.Load() }

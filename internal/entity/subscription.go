package entity

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription is a single-consumer mailbox of snapshots for one entity.
type Subscription struct {
	store    *Store
	entityID string
	id       uint64

	mu       sync.Mutex
	pending  []Snapshot
	capacity int
	closed   bool
	notify   chan struct{}

	coalesced atomic.Uint64
	closeOnce sync.Once
}

func newSubscription(store *Store, entityID string, id uint64, capacity int) *Subscription {
	return &Subscription{
		store:    store,
		entityID: entityID,
		id:       id,
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// EntityID returns the subscribed entity id.
func (s *Subscription) EntityID() string {
	return s.entityID
}

// Next blocks until a snapshot is available, ctx is done, or the
// subscription is closed.
//
// Returns:
//   - Snapshot: The oldest undelivered snapshot
//   - error: ctx.Err() or ErrSubscriptionClosed
func (s *Subscription) Next(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Snapshot{}, ErrSubscriptionClosed
		}
		if len(s.pending) > 0 {
			snap := s.pending[0]
			s.pending[0] = Snapshot{}
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return snap, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Pending returns the number of undelivered snapshots.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Coalesced returns how many snapshots were dropped because the consumer
// fell behind.
func (s *Subscription) Coalesced() uint64 {
	return s.coalesced.Load()
}

// Close releases the subscription. Pending snapshots are discarded and any
// blocked Next returns ErrSubscriptionClosed. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.store.unsubscribe(s.entityID, s.id)

		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()

		select {
		case s.notify <- struct{}{}:
		default:
		}
	})
}

// deliver appends snap without blocking. Reports whether an older pending
// snapshot had to be dropped.
func (s *Subscription) deliver(snap Snapshot) (dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(s.pending) >= s.capacity {
		s.pending = append(s.pending[:0], s.pending[1:]...)
		s.coalesced.Add(1)
		dropped = true
	}
	s.pending = append(s.pending, snap)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

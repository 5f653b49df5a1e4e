package entity

import (
	"sort"
	"sync"
)

// DefaultMailboxSize is the number of undelivered snapshots a subscription
// holds before coalescing the oldest.
const DefaultMailboxSize = 16

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is the Entity State Store: the latest snapshot of every entity the
// platform reports, plus its registry metadata.
type Store struct {
	mu       sync.RWMutex
	states   map[string]*Snapshot
	entities map[string]RegistryEntry
	devices  map[string]DeviceEntry
	subs     map[string]map[uint64]*Subscription
	nextSub  uint64

	mailboxSize int
	logger      Logger
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		states:      make(map[string]*Snapshot),
		entities:    make(map[string]RegistryEntry),
		devices:     make(map[string]DeviceEntry),
		subs:        make(map[string]map[uint64]*Subscription),
		mailboxSize: DefaultMailboxSize,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetMailboxSize changes the mailbox capacity for subscriptions created afterwards.
func (s *Store) SetMailboxSize(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.mailboxSize = n
	s.mu.Unlock()
}

// Apply records snap as the latest state of its entity and notifies the
// entity's subscribers.
func (s *Store) Apply(snap Snapshot) error {
	if err := ValidateID(snap.EntityID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(snap.DeepCopy())
	return nil
}

// Remove marks an entity the platform deleted as unavailable. The last
// attributes are kept so live mappings can still project it.
func (s *Store) Remove(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.states[entityID]
	if !ok {
		return
	}
	tomb := prev.DeepCopy()
	tomb.State = StateUnavailable
	s.applyLocked(tomb)
}

// Replace installs a full resync burst. Every snapshot in the burst is
// applied and notified once; entities missing from the burst become
// unavailable.
//
// Returns the number of entities notified.
func (s *Store) Replace(snaps []Snapshot) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(snaps))
	for i := range snaps {
		if ValidateID(snaps[i].EntityID) != nil {
			s.logger.Warn("skipping invalid entity id in resync", "entity_id", snaps[i].EntityID)
			continue
		}
		seen[snaps[i].EntityID] = struct{}{}
		s.applyLocked(snaps[i].DeepCopy())
	}

	notified := len(seen)
	for id, prev := range s.states {
		if _, ok := seen[id]; ok || prev.State == StateUnavailable {
			continue
		}
		tomb := prev.DeepCopy()
		tomb.State = StateUnavailable
		s.applyLocked(tomb)
		notified++
	}

	s.logger.Debug("entity store resynced", "entities", len(s.states), "notified", notified)
	return notified
}

// SetRegistry replaces the entity and device registry metadata.
func (s *Store) SetRegistry(entities []RegistryEntry, devices []DeviceEntry) {
	em := make(map[string]RegistryEntry, len(entities))
	for _, e := range entities {
		em[e.EntityID] = e
	}
	dm := make(map[string]DeviceEntry, len(devices))
	for _, d := range devices {
		dm[d.ID] = d
	}

	s.mu.Lock()
	s.entities = em
	s.devices = dm
	s.mu.Unlock()
}

// Get returns the latest snapshot of an entity with registry metadata attached.
func (s *Store) Get(entityID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.states[entityID]
	if !ok {
		return Snapshot{}, false
	}
	return *s.decorateLocked(snap.DeepCopy()), true
}

// DeviceOf returns the device registry entry the entity belongs to.
func (s *Store) DeviceOf(entityID string) (DeviceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.entities[entityID]
	if !ok || reg.DeviceID == "" {
		return DeviceEntry{}, false
	}
	dev, ok := s.devices[reg.DeviceID]
	return dev, ok
}

// RegistryOf returns the entity registry entry for an entity.
func (s *Store) RegistryOf(entityID string) (RegistryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.entities[entityID]
	return reg, ok
}

// List returns all snapshots sorted by entity id.
func (s *Store) List() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.states))
	for _, snap := range s.states {
		out = append(out, *s.decorateLocked(snap.DeepCopy()))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Len returns the number of entities in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Subscribe registers for changes to one entity. The entity need not exist
// yet. Callers must Close the subscription.
func (s *Store) Subscribe(entityID string) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	sub := newSubscription(s, entityID, s.nextSub, s.mailboxSize)
	if s.subs[entityID] == nil {
		s.subs[entityID] = make(map[uint64]*Subscription)
	}
	s.subs[entityID][sub.id] = sub
	return sub
}

// SubscriberCount returns the number of open subscriptions for an entity.
func (s *Store) SubscriberCount(entityID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[entityID])
}

// TotalSubscribers returns the number of open subscriptions across all entities.
func (s *Store) TotalSubscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, set := range s.subs {
		n += len(set)
	}
	return n
}

func (s *Store) unsubscribe(entityID string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.subs[entityID]
	delete(set, id)
	if len(set) == 0 {
		delete(s.subs, entityID)
	}
}

// applyLocked stores snap and delivers it while s.mu is held, so deliveries
// for one entity follow apply order. deliver never blocks.
func (s *Store) applyLocked(snap *Snapshot) {
	snap.Registry = nil
	snap.Device = nil
	s.states[snap.EntityID] = snap

	set := s.subs[snap.EntityID]
	if len(set) == 0 {
		return
	}
	decorated := s.decorateLocked(snap.DeepCopy())
	for _, sub := range set {
		if dropped := sub.deliver(*decorated.DeepCopy()); dropped {
			s.logger.Debug("subscriber behind, coalesced oldest update", "entity_id", snap.EntityID)
		}
	}
}

func (s *Store) decorateLocked(snap *Snapshot) *Snapshot {
	reg, ok := s.entities[snap.EntityID]
	if !ok {
		return snap
	}
	r := reg
	snap.Registry = &r
	if dev, ok := s.devices[reg.DeviceID]; ok && reg.DeviceID != "" {
		d := dev
		snap.Device = &d
	}
	return snap
}

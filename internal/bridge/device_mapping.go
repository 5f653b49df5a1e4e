package bridge

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

// actionTimeout bounds one platform action issued for an inbound command.
const actionTimeout = 10 * time.Second

// actionQueue is how many accepted commands may wait for the action worker.
const actionQueue = 16

type mappingPhase int32

const (
	phaseUnbuilt mappingPhase = iota
	phaseActive
	phaseTornDown
)

// mappingDeps are the collaborators a DeviceMapping is built with.
type mappingDeps struct {
	bridgeID string
	store    *entity.Store
	pub      PublishingContext
	platform Platform
	observer Observer
	logger   Logger
}

// DeviceMapping binds one entity to one published representation.
//
// The variant is chosen once at construction. Projection runs on a single
// goroutine and always re-reads the store, so a burst of changes converges
// on the latest snapshot. Platform actions are only issued for inbound
// commands, never while projecting.
type DeviceMapping struct {
	entityID string
	variant  mapping.Variant
	cfg      mapping.Config
	handle   Handle
	deps     mappingDeps

	phase   atomic.Int32
	subs    []*entity.Subscription
	dirty   chan struct{}
	actions chan mapping.Command

	cancel context.CancelFunc
	wg     sync.WaitGroup

	fieldsMu sync.RWMutex
	fields   mapping.Fields

	projections atomic.Uint64
	deferred    atomic.Uint64
	failures    atomic.Uint64
	commands    atomic.Uint64
}

// newDeviceMapping builds, publishes and activates the mapping for entityID.
//
// Returns:
//   - *DeviceMapping: Active mapping
//   - error: ErrNoSnapshot or mapping.ErrMappingSkipped when the entity is
//     not mappable; the runtime's error when publishing fails; ctx.Err()
//     when construction was cancelled
func newDeviceMapping(ctx context.Context, entityID string, cfg mapping.Config, deps mappingDeps) (*DeviceMapping, error) {
	snap, ok := deps.store.Get(entityID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, entityID)
	}

	variant, ok := mapping.Select(snap)
	if !ok {
		return nil, fmt.Errorf("%w: %s (device_class %q)", mapping.ErrMappingSkipped, entityID, snap.DeviceClass())
	}

	m := &DeviceMapping{
		entityID: entityID,
		variant:  variant,
		cfg:      cfg,
		deps:     deps,
		dirty:    make(chan struct{}, 1),
		actions:  make(chan mapping.Command, actionQueue),
	}

	// Subscribe before publishing so no change between build and activation
	// is lost.
	m.subs = append(m.subs, deps.store.Subscribe(entityID))

	rep, err := variant.Build(snap, cfg, deps.store)
	if err != nil {
		m.closeSubscriptions()
		return nil, err
	}
	for _, related := range rep.Related {
		m.subs = append(m.subs, deps.store.Subscribe(related))
	}

	if err := ctx.Err(); err != nil {
		m.closeSubscriptions()
		return nil, err
	}

	handle, err := deps.pub.Publish(ctx, rep)
	if err != nil {
		m.closeSubscriptions()
		return nil, fmt.Errorf("publishing %s: %w", entityID, err)
	}
	m.handle = handle
	m.setFields(rep.Fields)

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.phase.Store(int32(phaseActive))

	for _, sub := range m.subs {
		m.wg.Add(1)
		go m.pump(runCtx, sub)
	}
	m.wg.Add(2)
	go m.projectLoop(runCtx)
	go m.commandLoop(runCtx, deps.pub.Commands(handle))
	// Not tracked by wg: Teardown must not wait on platform actions.
	go m.actionLoop(m.actions)

	return m, nil
}

// EntityID returns the mapped entity id.
func (m *DeviceMapping) EntityID() string { return m.entityID }

// Tag returns the selected variant's tag.
func (m *DeviceMapping) Tag() mapping.Tag { return m.variant.Tag() }

// Active reports whether the mapping has not been torn down.
func (m *DeviceMapping) Active() bool {
	return mappingPhase(m.phase.Load()) == phaseActive
}

// Info returns a snapshot of the mapping's state and counters.
func (m *DeviceMapping) Info() DeviceInfo {
	m.fieldsMu.RLock()
	fields := m.fields.Clone()
	m.fieldsMu.RUnlock()

	return DeviceInfo{
		EntityID:    m.entityID,
		Tag:         m.variant.Tag(),
		Handle:      m.handle,
		Fields:      fields,
		Projections: m.projections.Load(),
		Deferred:    m.deferred.Load(),
		Failures:    m.failures.Load(),
		Commands:    m.commands.Load(),
	}
}

// Teardown releases the store subscriptions, stops the mapping's goroutines
// and detaches the representation. It is idempotent. It does not wait for
// platform actions: those already accepted still run to completion or
// actionTimeout on the action worker.
func (m *DeviceMapping) Teardown() {
	if !m.phase.CompareAndSwap(int32(phaseActive), int32(phaseTornDown)) {
		return
	}
	m.closeSubscriptions()
	m.cancel()
	m.wg.Wait()
	m.deps.pub.Detach(m.handle)
}

// Resync schedules a re-projection from the current store state.
func (m *DeviceMapping) Resync() {
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

func (m *DeviceMapping) closeSubscriptions() {
	for _, sub := range m.subs {
		sub.Close()
	}
}

// pump turns store deliveries into projection requests. Pending requests
// coalesce because projection re-reads the store.
func (m *DeviceMapping) pump(ctx context.Context, sub *entity.Subscription) {
	defer m.wg.Done()
	for {
		if _, err := sub.Next(ctx); err != nil {
			return
		}
		m.Resync()
	}
}

func (m *DeviceMapping) projectLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.dirty:
			m.project(ctx)
		}
	}
}

// project runs one projection cycle. Failures are confined to this cycle.
func (m *DeviceMapping) project(ctx context.Context) {
	snap, ok := m.deps.store.Get(m.entityID)
	if !ok {
		return
	}

	fields, err := m.variant.Project(snap, m.cfg, m.deps.store)
	if err != nil {
		m.failures.Add(1)
		m.deps.logger.Warn("projection failed", "bridge_id", m.deps.bridgeID, "entity_id", m.entityID, "error", err)
		return
	}

	if err := m.deps.pub.SetState(ctx, m.handle, fields); err != nil {
		switch {
		case errors.Is(err, mapping.ErrProjectionDeferred):
			m.deferred.Add(1)
			m.deps.logger.Debug("projection deferred", "bridge_id", m.deps.bridgeID, "entity_id", m.entityID)
		case ctx.Err() != nil:
		default:
			m.failures.Add(1)
			m.deps.logger.Warn("setting device state failed", "bridge_id", m.deps.bridgeID, "entity_id", m.entityID, "error", err)
		}
		return
	}

	m.projections.Add(1)
	m.setFields(fields)
	m.deps.observer.DeviceStateChanged(m.deps.bridgeID, m.entityID, m.variant.Tag(), fields.Clone())
}

func (m *DeviceMapping) setFields(fields mapping.Fields) {
	m.fieldsMu.Lock()
	m.fields = maps.Clone(fields)
	m.fieldsMu.Unlock()
}

// commandLoop accepts inbound commands and queues them for the action
// worker. Closing the queue on exit lets the worker drain and stop.
func (m *DeviceMapping) commandLoop(ctx context.Context, cmds <-chan mapping.Command) {
	defer m.wg.Done()
	defer close(m.actions)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			m.commands.Add(1)
			select {
			case m.actions <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}
}

// actionLoop issues platform actions one at a time, in arrival order. Each
// gets its own timeout and is independent of the bridge's lifetime.
func (m *DeviceMapping) actionLoop(actions <-chan mapping.Command) {
	for cmd := range actions {
		m.handleCommand(context.Background(), cmd)
	}
}

func (m *DeviceMapping) handleCommand(ctx context.Context, cmd mapping.Command) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	err := m.variant.OnCommand(ctx, m.entityID, cmd, m.invoke)
	switch {
	case err == nil:
		m.deps.logger.Debug("command forwarded", "bridge_id", m.deps.bridgeID, "entity_id", m.entityID, "kind", cmd.Kind)
	case errors.Is(err, mapping.ErrUnsupportedCommand), errors.Is(err, mapping.ErrInvalidCommand):
		m.deps.logger.Debug("command ignored", "bridge_id", m.deps.bridgeID, "entity_id", m.entityID, "kind", cmd.Kind, "reason", err)
	default:
		m.deps.logger.Error("platform action failed", "bridge_id", m.deps.bridgeID, "entity_id", m.entityID, "kind", cmd.Kind, "error", err)
	}
}

// invoke targets the mapped entity.
func (m *DeviceMapping) invoke(ctx context.Context, domain, service string, data map[string]any) error {
	payload := make(map[string]any, len(data)+1)
	maps.Copy(payload, data)
	payload["entity_id"] = m.entityID
	return m.deps.platform.CallService(ctx, domain, service, payload)
}

package mqttruntime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/bridge"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

type endpoint struct {
	rep      mapping.Representation
	fields   mapping.Fields
	commands chan mapping.Command
}

// pubContext is one bridge's presence on the broker.
type pubContext struct {
	rt     *Runtime
	id     bridge.Identity
	topics mqtt.Topics

	mu        sync.RWMutex
	next      uint32
	endpoints map[bridge.Handle]*endpoint
	fabrics   []bridge.Fabric
	subs      []string
	closed    bool
	err       error

	done     chan struct{}
	doneOnce sync.Once
}

func newPubContext(rt *Runtime, id bridge.Identity) *pubContext {
	return &pubContext{
		rt:        rt,
		id:        id,
		topics:    rt.topics,
		next:      firstEndpoint,
		endpoints: make(map[bridge.Handle]*endpoint),
		fabrics:   []bridge.Fabric{},
		done:      make(chan struct{}),
	}
}

// open subscribes to the runtime-facing topics and announces the bridge.
func (p *pubContext) open() error {
	b := p.rt.broker
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{p.topics.AllDeviceCommands(p.id.BridgeID), p.handleCommand},
		{p.topics.RuntimeFabrics(p.id.BridgeID), p.handleFabrics},
		{p.topics.RuntimeStatus(p.id.BridgeID), p.handleStatus},
	}
	for _, s := range subs {
		if err := b.Subscribe(s.topic, b.QoS(), s.handler); err != nil {
			return fmt.Errorf("subscribing %s: %w", s.topic, err)
		}
		p.mu.Lock()
		p.subs = append(p.subs, s.topic)
		p.mu.Unlock()
	}
	return p.announce()
}

func (p *pubContext) announce() error {
	p.mu.RLock()
	count := len(p.endpoints)
	p.mu.RUnlock()

	return p.rt.broker.PublishJSON(p.topics.RuntimeBridge(p.id.BridgeID), Announcement{
		BridgeID:    p.id.BridgeID,
		Name:        p.id.Name,
		Port:        p.id.Port,
		DeviceCount: count,
		Timestamp:   timestamp(),
	}, true)
}

// Publish implements bridge.PublishingContext.
func (p *pubContext) Publish(ctx context.Context, rep mapping.Representation) (bridge.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrContextClosed
	}
	h := bridge.Handle(p.next)
	p.next++
	ep := &endpoint{
		rep:      rep,
		fields:   rep.Fields.Clone(),
		commands: make(chan mapping.Command, commandBuffer),
	}
	p.endpoints[h] = ep
	p.mu.Unlock()

	b := p.rt.broker
	n := uint32(h)
	err := b.PublishJSON(p.topics.DeviceConfig(p.id.BridgeID, n), DeviceConfig{Endpoint: n, Device: rep}, true)
	if err == nil {
		err = b.PublishJSON(p.topics.DeviceState(p.id.BridgeID, n), DeviceState{Endpoint: n, Fields: ep.fields, Timestamp: timestamp()}, true)
	}
	if err != nil {
		p.drop(h)
		return 0, fmt.Errorf("publishing %s: %w", rep.EntityID, err)
	}

	if err := p.announce(); err != nil {
		p.rt.getLogger().Debug("bridge announcement failed", "bridge_id", p.id.BridgeID, "error", err)
	}
	return h, nil
}

// SetState implements bridge.PublishingContext.
func (p *pubContext) SetState(_ context.Context, h bridge.Handle, fields mapping.Fields) error {
	p.mu.Lock()
	ep, ok := p.endpoints[h]
	if !ok || p.closed {
		p.mu.Unlock()
		return fmt.Errorf("%w: endpoint %d not published", mapping.ErrProjectionDeferred, h)
	}
	if !p.rt.broker.IsConnected() {
		p.mu.Unlock()
		return fmt.Errorf("%w: broker disconnected", mapping.ErrProjectionDeferred)
	}
	ep.fields = fields.Clone()
	p.mu.Unlock()

	n := uint32(h)
	err := p.rt.broker.PublishJSON(p.topics.DeviceState(p.id.BridgeID, n), DeviceState{Endpoint: n, Fields: fields, Timestamp: timestamp()}, true)
	if errors.Is(err, mqtt.ErrNotConnected) {
		return fmt.Errorf("%w: %w", mapping.ErrProjectionDeferred, err)
	}
	return err
}

// Commands implements bridge.PublishingContext. An unknown handle yields a
// nil channel.
func (p *pubContext) Commands(h bridge.Handle) <-chan mapping.Command {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if ep, ok := p.endpoints[h]; ok {
		return ep.commands
	}
	return nil
}

// Detach implements bridge.PublishingContext.
func (p *pubContext) Detach(h bridge.Handle) {
	if !p.drop(h) {
		return
	}
	n := uint32(h)
	b := p.rt.broker
	if err := b.ClearRetained(p.topics.DeviceConfig(p.id.BridgeID, n)); err != nil {
		p.rt.getLogger().Debug("clearing endpoint config failed", "bridge_id", p.id.BridgeID, "endpoint", n, "error", err)
	}
	b.ClearRetained(p.topics.DeviceState(p.id.BridgeID, n)) //nolint:errcheck

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if !closed {
		p.announce() //nolint:errcheck
	}
}

// drop forgets an endpoint and closes its command channel.
func (p *pubContext) drop(h bridge.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[h]
	if !ok {
		return false
	}
	delete(p.endpoints, h)
	close(ep.commands)
	return true
}

// Fabrics implements bridge.PublishingContext.
func (p *pubContext) Fabrics() []bridge.Fabric {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]bridge.Fabric, len(p.fabrics))
	copy(out, p.fabrics)
	return out
}

// Done implements bridge.PublishingContext.
func (p *pubContext) Done() <-chan struct{} { return p.done }

// Err implements bridge.PublishingContext.
func (p *pubContext) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// Close unsubscribes, clears every retained document of the bridge and
// releases the bridge ID. It is idempotent.
func (p *pubContext) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	subs := p.subs
	p.subs = nil
	handles := make([]bridge.Handle, 0, len(p.endpoints))
	for h := range p.endpoints {
		handles = append(handles, h)
	}
	p.mu.Unlock()

	b := p.rt.broker
	var errs []error
	for _, topic := range subs {
		if err := b.Unsubscribe(topic); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			errs = append(errs, err)
		}
	}
	for _, h := range handles {
		p.Detach(h)
	}
	if err := b.ClearRetained(p.topics.RuntimeBridge(p.id.BridgeID)); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		errs = append(errs, err)
	}

	p.doneOnce.Do(func() { close(p.done) })
	p.rt.release(p)
	p.rt.getLogger().Info("runtime context closed", "bridge_id", p.id.BridgeID)
	return errors.Join(errs...)
}

// fail marks the context failed; the owner tears it down on Done.
func (p *pubContext) fail(err error) {
	p.mu.Lock()
	if p.closed || p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.mu.Unlock()

	p.rt.getLogger().Warn("runtime context failed", "bridge_id", p.id.BridgeID, "error", err)
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *pubContext) republish() {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return
	}
	type doc struct {
		n      uint32
		rep    mapping.Representation
		fields mapping.Fields
	}
	docs := make([]doc, 0, len(p.endpoints))
	for h, ep := range p.endpoints {
		docs = append(docs, doc{uint32(h), ep.rep, ep.fields.Clone()})
	}
	p.mu.RUnlock()

	b := p.rt.broker
	err := p.announce()
	for _, d := range docs {
		if err != nil {
			break
		}
		err = b.PublishJSON(p.topics.DeviceConfig(p.id.BridgeID, d.n), DeviceConfig{Endpoint: d.n, Device: d.rep}, true)
		if err == nil {
			err = b.PublishJSON(p.topics.DeviceState(p.id.BridgeID, d.n), DeviceState{Endpoint: d.n, Fields: d.fields, Timestamp: timestamp()}, true)
		}
	}
	if err != nil {
		p.rt.getLogger().Warn("republishing bridge failed", "bridge_id", p.id.BridgeID, "error", err)
	}
}

// =============================================================================
// Inbound handlers
// =============================================================================

func (p *pubContext) handleCommand(topic string, payload []byte) error {
	bridgeID, n, leaf, ok := p.topics.ParseDeviceTopic(topic)
	if !ok || bridgeID != p.id.BridgeID || leaf != mqtt.DeviceLeafCommand {
		return fmt.Errorf("unexpected command topic %q", topic)
	}

	var cmd mapping.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decoding command for endpoint %d: %w", n, err)
	}
	if cmd.Kind == "" {
		return fmt.Errorf("command for endpoint %d has no kind", n)
	}

	// Sending under the read lock keeps drop from closing the channel
	// mid-send.
	p.mu.RLock()
	defer p.mu.RUnlock()
	ep, ok := p.endpoints[bridge.Handle(n)]
	if !ok {
		p.rt.getLogger().Debug("command for unknown endpoint dropped", "bridge_id", p.id.BridgeID, "endpoint", n)
		return nil
	}
	select {
	case ep.commands <- cmd:
	default:
		p.rt.getLogger().Warn("command queue full, dropping command",
			"bridge_id", p.id.BridgeID, "entity_id", ep.rep.EntityID, "kind", cmd.Kind)
	}
	return nil
}

func (p *pubContext) handleFabrics(_ string, payload []byte) error {
	fabrics := []bridge.Fabric{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fabrics); err != nil {
			return fmt.Errorf("decoding fabrics: %w", err)
		}
		if fabrics == nil {
			fabrics = []bridge.Fabric{}
		}
	}
	p.mu.Lock()
	p.fabrics = fabrics
	p.mu.Unlock()
	return nil
}

func (p *pubContext) handleStatus(_ string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var st RuntimeStatus
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("decoding runtime status: %w", err)
	}
	if st.Status == StatusError {
		p.fail(fmt.Errorf("%w: %s", ErrRuntimeFailed, st.Error))
	}
	return nil
}

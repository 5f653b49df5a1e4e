package bridge

import (
	"context"
	"slices"
	"sync"
)

// Bridge is one publishing context and the device mappings it holds.
//
// All fields are guarded by mu. opMu serialises lifecycle operations on the
// bridge (start, stop, rebuild, failure handling) and is always acquired
// before mu.
type Bridge struct {
	opMu sync.Mutex

	mu       sync.RWMutex
	cfg      Config
	status   Status
	lastErr  error
	pub      PublishingContext
	mappings []*DeviceMapping
	cancel   context.CancelFunc
}

func newBridge(cfg Config) *Bridge {
	return &Bridge{
		cfg:    cfg.clone(),
		status: StatusStopped,
	}
}

// ID returns the bridge id.
func (b *Bridge) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg.ID
}

// Config returns a copy of the bridge configuration.
func (b *Bridge) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg.clone()
}

// Status returns the internal lifecycle status.
func (b *Bridge) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Summary returns the externally visible view of the bridge.
func (b *Bridge) Summary() Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Summary{
		ID:            b.cfg.ID,
		Name:          b.cfg.Name,
		Port:          b.cfg.Port,
		Status:        b.status.External(),
		DeviceCount:   b.activeCountLocked(),
		Commissioning: Commissioning{Fabrics: []Fabric{}},
	}
	if b.pub != nil && b.status == StatusRunning {
		if fabrics := b.pub.Fabrics(); fabrics != nil {
			s.Commissioning.Fabrics = fabrics
		}
	}
	if b.lastErr != nil {
		s.Error = b.lastErr.Error()
	}
	return s
}

// Devices returns the live mappings in configuration order.
func (b *Bridge) Devices() []DeviceInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]DeviceInfo, 0, len(b.mappings))
	for _, m := range b.mappings {
		if m.Active() {
			out = append(out, m.Info())
		}
	}
	return out
}

// HasEntity reports whether entityID is part of the bridge configuration.
func (b *Bridge) HasEntity(entityID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Contains(b.cfg.Entities, entityID)
}

func (b *Bridge) activeCountLocked() int {
	n := 0
	for _, m := range b.mappings {
		if m.Active() {
			n++
		}
	}
	return n
}

// setStatus updates status and error and returns the resulting summary.
func (b *Bridge) setStatus(status Status, err error) Summary {
	b.mu.Lock()
	b.status = status
	b.lastErr = err
	b.mu.Unlock()
	return b.Summary()
}

// teardownLocked tears down every mapping and closes the publishing context.
// The caller holds opMu.
func (b *Bridge) teardownLocked() {
	b.mu.Lock()
	mappings := b.mappings
	pub := b.pub
	cancel := b.cancel
	b.mappings = nil
	b.pub = nil
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, m := range mappings {
		m.Teardown()
	}
	if pub != nil {
		_ = pub.Close()
	}
}

func (b *Bridge) resync() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.mappings {
		m.Resync()
	}
}

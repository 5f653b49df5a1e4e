package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

// DefaultBuildConcurrency bounds concurrent mapping construction per bridge.
const DefaultBuildConcurrency = 8

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Store is the entity state store mappings read from. Required.
	Store *entity.Store

	// Runtime opens publishing contexts. Required.
	Runtime Runtime

	// Platform executes actions for inbound commands. Required.
	Platform Platform

	// Repository persists bridge definitions. Optional; without it only
	// Start, Stop and the read operations are usable.
	Repository Repository

	// Observer receives status and state events. Optional.
	Observer Observer

	// Logger for lifecycle logging. Optional.
	Logger Logger

	// BuildConcurrency bounds concurrent mapping construction per bridge.
	BuildConcurrency int
}

// Manager owns every bridge. It is the only code that changes a bridge's
// status.
type Manager struct {
	store            *entity.Store
	runtime          Runtime
	platform         Platform
	repo             Repository
	observer         Observer
	buildConcurrency int

	loggerMu sync.RWMutex
	logger   Logger

	mu      sync.RWMutex
	bridges map[string]*Bridge
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a bridge manager.
//
// Returns:
//   - *Manager: Manager with no bridges registered
//   - error: If a required dependency is missing
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("bridge: store is required")
	}
	if opts.Runtime == nil {
		return nil, errors.New("bridge: runtime is required")
	}
	if opts.Platform == nil {
		return nil, errors.New("bridge: platform is required")
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.BuildConcurrency < 1 {
		opts.BuildConcurrency = DefaultBuildConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:            opts.Store,
		runtime:          opts.Runtime,
		platform:         opts.Platform,
		repo:             opts.Repository,
		observer:         opts.Observer,
		buildConcurrency: opts.BuildConcurrency,
		logger:           opts.Logger,
		bridges:          make(map[string]*Bridge),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// SetLogger sets the logger. Thread-safe.
func (m *Manager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	defer m.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

func (m *Manager) log() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

// List returns every bridge summary ordered by name (case-insensitive),
// then id.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	bridges := make([]*Bridge, 0, len(m.bridges))
	for _, b := range m.bridges {
		bridges = append(bridges, b)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(bridges))
	for _, b := range bridges {
		out = append(out, b.Summary())
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Get returns one bridge summary.
func (m *Manager) Get(id string) (Summary, error) {
	b, err := m.bridge(id)
	if err != nil {
		return Summary{}, err
	}
	return b.Summary(), nil
}

// Config returns a bridge's configuration.
func (m *Manager) Config(id string) (Config, error) {
	b, err := m.bridge(id)
	if err != nil {
		return Config{}, err
	}
	return b.Config(), nil
}

// Status returns a bridge's external status.
func (m *Manager) Status(id string) (Status, error) {
	b, err := m.bridge(id)
	if err != nil {
		return "", err
	}
	return b.Status().External(), nil
}

// Devices returns the live mappings of a bridge.
func (m *Manager) Devices(id string) ([]DeviceInfo, error) {
	b, err := m.bridge(id)
	if err != nil {
		return nil, err
	}
	return b.Devices(), nil
}

// Totals aggregates counts over all bridges. Status counts use the internal
// status.
func (m *Manager) Totals() Totals {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var t Totals
	for _, b := range m.bridges {
		t.Bridges++
		b.mu.RLock()
		switch b.status {
		case StatusRunning:
			t.Running++
		case StatusStarting:
			t.Starting++
		case StatusError:
			t.Error++
		default:
			t.Stopped++
		}
		t.Devices += b.activeCountLocked()
		b.mu.RUnlock()
	}
	return t
}

// Start registers cfg without persisting it and starts the bridge.
//
// Returns:
//   - Summary: Bridge summary after startup
//   - error: ErrInvalidConfig, ErrDuplicateID, ErrPortInUse or a wrapped
//     ErrStartupFailed
func (m *Manager) Start(ctx context.Context, cfg Config) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	b, err := m.register(cfg)
	if err != nil {
		return Summary{}, err
	}
	err = m.startBridge(ctx, b)
	return b.Summary(), err
}

// StartByID starts a registered bridge.
func (m *Manager) StartByID(ctx context.Context, id string) (Summary, error) {
	b, err := m.bridge(id)
	if err != nil {
		return Summary{}, err
	}
	err = m.startBridge(ctx, b)
	return b.Summary(), err
}

// Stop tears down every mapping of a bridge and closes its publishing
// context. An in-flight start is cancelled. Stopping a stopped bridge is a
// no-op.
func (m *Manager) Stop(ctx context.Context, id string) error {
	b, err := m.bridge(id)
	if err != nil {
		return err
	}
	m.stopBridge(b)
	return nil
}

// Create validates, persists and (with AutoStart) starts a new bridge. A
// startup failure is reported through the summary's status, not as an
// error.
func (m *Manager) Create(ctx context.Context, cfg Config) (Summary, error) {
	if m.repo == nil {
		return Summary{}, errors.New("bridge: no repository configured")
	}
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	b, err := m.register(cfg)
	if err != nil {
		return Summary{}, err
	}
	if err := m.repo.Create(ctx, &cfg); err != nil {
		m.unregister(cfg.ID)
		return Summary{}, err
	}
	m.log().Info("bridge created", "bridge_id", cfg.ID, "name", cfg.Name, "port", cfg.Port, "entities", len(cfg.Entities))

	if cfg.AutoStart {
		if err := m.startBridge(ctx, b); err != nil {
			m.log().Warn("bridge auto-start failed", "bridge_id", cfg.ID, "error", err)
		}
	} else {
		m.notify(b.Summary())
	}
	return b.Summary(), nil
}

// Update replaces a bridge definition. A bridge that was running is rebuilt
// with the new definition.
func (m *Manager) Update(ctx context.Context, id string, cfg Config) (Summary, error) {
	if m.repo == nil {
		return Summary{}, errors.New("bridge: no repository configured")
	}
	b, err := m.bridge(id)
	if err != nil {
		return Summary{}, err
	}
	cfg.ID = id
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	if err := m.checkPort(id, cfg.Port, false); err != nil {
		return Summary{}, err
	}

	old := b.Config()
	cfg.CreatedAt = old.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()
	if err := m.repo.Update(ctx, &cfg); err != nil {
		return Summary{}, err
	}

	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	b.opMu.Lock()
	wasActive := b.Status() != StatusStopped
	m.stopLocked(b)
	b.mu.Lock()
	b.cfg = cfg.clone()
	b.mu.Unlock()
	b.opMu.Unlock()
	m.log().Info("bridge updated", "bridge_id", id, "restart", wasActive)

	if wasActive {
		if err := m.startBridge(ctx, b); err != nil {
			m.log().Warn("bridge restart after update failed", "bridge_id", id, "error", err)
		}
	} else {
		m.notify(b.Summary())
	}
	return b.Summary(), nil
}

// Remove stops a bridge, deletes its definition and forgets it.
func (m *Manager) Remove(ctx context.Context, id string) error {
	b, err := m.bridge(id)
	if err != nil {
		return err
	}
	m.stopBridge(b)

	if m.repo != nil {
		if err := m.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrBridgeNotFound) {
			return err
		}
	}
	m.unregister(id)
	m.log().Info("bridge removed", "bridge_id", id)
	return nil
}

// Restore registers every persisted bridge and starts those marked
// AutoStart, concurrently. Individual startup failures leave that bridge in
// error status and are not returned.
func (m *Manager) Restore(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	cfgs, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("listing bridges: %w", err)
	}

	var g errgroup.Group
	for _, cfg := range cfgs {
		b, err := m.register(cfg)
		if err != nil {
			m.log().Warn("skipping persisted bridge", "bridge_id", cfg.ID, "error", err)
			continue
		}
		if !cfg.AutoStart {
			continue
		}
		cfg := cfg
		g.Go(func() error {
			if err := m.startBridge(ctx, b); err != nil {
				m.log().Warn("bridge restore failed", "bridge_id", cfg.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.log().Info("bridges restored", "count", len(cfgs))
	return nil
}

// Resync re-projects every live mapping from the store.
func (m *Manager) Resync() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bridges {
		b.resync()
	}
}

// Close stops every bridge. Further lifecycle operations fail with
// ErrManagerClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	bridges := make([]*Bridge, 0, len(m.bridges))
	for _, b := range m.bridges {
		bridges = append(bridges, b)
	}
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, b := range bridges {
			b := b
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.stopBridge(b)
			}()
		}
		wg.Wait()
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("closing bridge manager: %w", ctx.Err())
	}
}

func (m *Manager) bridge(id string) (*Bridge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bridges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBridgeNotFound, id)
	}
	return b, nil
}

// register adds a stopped bridge. Ports must be unique across registered
// bridges because the definitions share one persisted namespace.
func (m *Manager) register(cfg Config) (*Bridge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if _, ok := m.bridges[cfg.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, cfg.ID)
	}
	for _, other := range m.bridges {
		if other.Config().Port == cfg.Port {
			return nil, fmt.Errorf("%w: %d", ErrPortInUse, cfg.Port)
		}
	}
	b := newBridge(cfg)
	m.bridges[cfg.ID] = b
	return b, nil
}

func (m *Manager) unregister(id string) {
	m.mu.Lock()
	delete(m.bridges, id)
	m.mu.Unlock()
}

// checkPort reports ErrPortInUse if a bridge other than id uses port. With
// liveOnly, only starting and running bridges are considered.
func (m *Manager) checkPort(id string, port int, liveOnly bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkPortLocked(id, port, liveOnly)
}

func (m *Manager) checkPortLocked(id string, port int, liveOnly bool) error {
	for otherID, other := range m.bridges {
		if otherID == id {
			continue
		}
		other.mu.RLock()
		taken := other.cfg.Port == port
		live := other.status == StatusRunning || other.status == StatusStarting
		other.mu.RUnlock()
		if taken && (live || !liveOnly) {
			return fmt.Errorf("%w: %d", ErrPortInUse, port)
		}
	}
	return nil
}

// beginStart moves b to starting. The port check and the transition happen
// under the manager lock so two bridges cannot claim one port.
func (m *Manager) beginStart(b *Bridge) (Config, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Config{}, nil, ErrManagerClosed
	}

	b.mu.RLock()
	cfg := b.cfg.clone()
	status := b.status
	b.mu.RUnlock()

	if status == StatusRunning || status == StatusStarting {
		return Config{}, nil, fmt.Errorf("%w: %s", ErrBridgeRunning, cfg.ID)
	}
	if err := m.checkPortLocked(cfg.ID, cfg.Port, true); err != nil {
		return Config{}, nil, err
	}

	bctx, cancel := context.WithCancel(m.ctx)
	b.mu.Lock()
	b.status = StatusStarting
	b.lastErr = nil
	b.cancel = cancel
	b.mu.Unlock()
	return cfg, bctx, nil
}

// startBridge opens the publishing context and builds every mappable
// entity. Unmappable entities are skipped and never fail the start.
func (m *Manager) startBridge(ctx context.Context, b *Bridge) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	cfg, bctx, err := m.beginStart(b)
	if err != nil {
		return err
	}
	m.notify(b.Summary())
	logger := m.log()
	startedAt := time.Now()

	pub, err := m.runtime.OpenContext(bctx, Identity{BridgeID: cfg.ID, Name: cfg.Name, Port: cfg.Port})
	if err != nil {
		b.teardownLocked()
		if bctx.Err() != nil {
			m.notify(b.setStatus(StatusStopped, nil))
			return fmt.Errorf("starting bridge %s: %w", cfg.ID, context.Canceled)
		}
		err = fmt.Errorf("%w: %s: %w", ErrStartupFailed, cfg.ID, err)
		m.notify(b.setStatus(StatusError, err))
		logger.Error("bridge startup failed", "bridge_id", cfg.ID, "error", err)
		return err
	}

	b.mu.Lock()
	b.pub = pub
	b.mu.Unlock()

	deps := mappingDeps{
		bridgeID: cfg.ID,
		store:    m.store,
		pub:      pub,
		platform: m.platform,
		observer: m.observer,
		logger:   logger,
	}

	built := make([]*DeviceMapping, len(cfg.Entities))
	var g errgroup.Group
	g.SetLimit(m.buildConcurrency)
	for i, entityID := range cfg.Entities {
		i, entityID := i, entityID
		g.Go(func() error {
			dm, err := newDeviceMapping(bctx, entityID, cfg.MappingConfig(entityID), deps)
			switch {
			case err == nil:
				built[i] = dm
			case errors.Is(err, ErrNoSnapshot), errors.Is(err, mapping.ErrMappingSkipped):
				logger.Info("entity not mapped", "bridge_id", cfg.ID, "entity_id", entityID, "reason", err)
			case bctx.Err() != nil:
			default:
				logger.Warn("device mapping failed", "bridge_id", cfg.ID, "entity_id", entityID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	mappings := slices.DeleteFunc(built, func(dm *DeviceMapping) bool { return dm == nil })
	b.mu.Lock()
	b.mappings = mappings
	b.mu.Unlock()

	if bctx.Err() != nil {
		b.teardownLocked()
		m.notify(b.setStatus(StatusStopped, nil))
		logger.Info("bridge start cancelled", "bridge_id", cfg.ID)
		return fmt.Errorf("starting bridge %s: %w", cfg.ID, context.Canceled)
	}

	m.notify(b.setStatus(StatusRunning, nil))
	logger.Info("bridge started",
		"bridge_id", cfg.ID,
		"name", cfg.Name,
		"port", cfg.Port,
		"devices", len(mappings),
		"skipped", len(cfg.Entities)-len(mappings),
		"duration", time.Since(startedAt),
	)

	m.wg.Add(1)
	go m.watch(bctx, b, pub)
	return nil
}

// stopBridge cancels any in-flight start, then tears the bridge down.
func (m *Manager) stopBridge(b *Bridge) {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()
	m.stopLocked(b)
}

// stopLocked tears the bridge down. The caller holds b.opMu.
func (m *Manager) stopLocked(b *Bridge) {
	if b.Status() == StatusStopped {
		return
	}
	b.teardownLocked()
	s := b.setStatus(StatusStopped, nil)
	m.notify(s)
	m.log().Info("bridge stopped", "bridge_id", s.ID)
}

// watch moves a running bridge to error when its publishing context fails.
func (m *Manager) watch(bctx context.Context, b *Bridge, pub PublishingContext) {
	defer m.wg.Done()

	select {
	case <-bctx.Done():
		return
	case <-pub.Done():
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.mu.RLock()
	current := b.pub == pub
	b.mu.RUnlock()
	if !current {
		return
	}

	cause := pub.Err()
	if cause == nil {
		cause = errors.New("closed by runtime")
	}
	b.teardownLocked()
	err := fmt.Errorf("%w: %w", ErrContextLost, cause)
	s := b.setStatus(StatusError, err)
	m.notify(s)
	m.log().Error("bridge publishing context failed", "bridge_id", s.ID, "error", err)
}

func (m *Manager) notify(s Summary) {
	m.observer.BridgeStatusChanged(s)
}

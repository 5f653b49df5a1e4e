package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

// fakePub is an in-memory PublishingContext.
type fakePub struct {
	mu        sync.Mutex
	id        Identity
	next      Handle
	published map[Handle]mapping.Representation
	states    map[Handle][]mapping.Fields
	cmds      map[Handle]chan mapping.Command
	detached  map[Handle]bool
	fabrics   []Fabric
	deferring map[Handle]bool
	closed    bool
	err       error
	done      chan struct{}
	doneOnce  sync.Once

	// publishGate, when set, blocks Publish until closed or ctx ends.
	publishGate chan struct{}
}

func newFakePub(id Identity) *fakePub {
	return &fakePub{
		id:        id,
		published: make(map[Handle]mapping.Representation),
		states:    make(map[Handle][]mapping.Fields),
		cmds:      make(map[Handle]chan mapping.Command),
		detached:  make(map[Handle]bool),
		deferring: make(map[Handle]bool),
		done:      make(chan struct{}),
	}
}

func (p *fakePub) Publish(ctx context.Context, rep mapping.Representation) (Handle, error) {
	p.mu.Lock()
	gate := p.publishGate
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("publishing context closed")
	}
	p.next++
	h := p.next
	p.published[h] = rep
	p.cmds[h] = make(chan mapping.Command, 8)
	return h, nil
}

func (p *fakePub) SetState(_ context.Context, h Handle, fields mapping.Fields) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.published[h]; !ok || p.deferring[h] {
		return fmt.Errorf("%w: handle %d", mapping.ErrProjectionDeferred, h)
	}
	p.states[h] = append(p.states[h], fields.Clone())
	return nil
}

func (p *fakePub) Commands(h Handle) <-chan mapping.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmds[h]
}

func (p *fakePub) Detach(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached[h] = true
}

func (p *fakePub) Fabrics() []Fabric {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fabric(nil), p.fabrics...)
}

func (p *fakePub) Done() <-chan struct{} { return p.done }

func (p *fakePub) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePub) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
	return nil
}

// fail simulates the runtime losing the context.
func (p *fakePub) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *fakePub) send(t *testing.T, entityID string, cmd mapping.Command) {
	t.Helper()
	h := p.handleOf(entityID)
	if h == 0 {
		t.Fatalf("%s was not published", entityID)
	}
	p.mu.Lock()
	ch := p.cmds[h]
	p.mu.Unlock()
	ch <- cmd
}

// setDeferred makes SetState for entityID answer ErrProjectionDeferred
// until cleared.
func (p *fakePub) setDeferred(t *testing.T, entityID string, deferred bool) {
	t.Helper()
	h := p.handleOf(entityID)
	if h == 0 {
		t.Fatalf("%s was not published", entityID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if deferred {
		p.deferring[h] = true
	} else {
		delete(p.deferring, h)
	}
}

func (p *fakePub) handleOf(entityID string) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	for h, rep := range p.published {
		if rep.EntityID == entityID {
			return h
		}
	}
	return 0
}

func (p *fakePub) publishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *fakePub) detachedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.detached)
}

func (p *fakePub) lastState(entityID string) (mapping.Fields, int) {
	h := p.handleOf(entityID)
	p.mu.Lock()
	defer p.mu.Unlock()
	states := p.states[h]
	if len(states) == 0 {
		return nil, 0
	}
	return states[len(states)-1], len(states)
}

func (p *fakePub) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeRuntime hands out fakePubs.
type fakeRuntime struct {
	mu      sync.Mutex
	openErr error
	pubs    []*fakePub
	gate    chan struct{}
}

func (r *fakeRuntime) OpenContext(_ context.Context, id Identity) (PublishingContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return nil, r.openErr
	}
	p := newFakePub(id)
	p.publishGate = r.gate
	r.pubs = append(r.pubs, p)
	return p, nil
}

func (r *fakeRuntime) last(t *testing.T) *fakePub {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pubs) == 0 {
		t.Fatal("no publishing context opened")
	}
	return r.pubs[len(r.pubs)-1]
}

type serviceCall struct {
	Domain  string
	Service string
	Data    map[string]any
}

// fakePlatform records action calls.
type fakePlatform struct {
	mu    sync.Mutex
	calls []serviceCall
	err   error

	// hold, when set, blocks CallService after recording until closed or
	// ctx ends.
	hold chan struct{}
}

func (p *fakePlatform) Connected() bool { return true }

func (p *fakePlatform) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	p.mu.Lock()
	p.calls = append(p.calls, serviceCall{Domain: domain, Service: service, Data: data})
	hold, err := p.hold, p.err
	p.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *fakePlatform) Calls() []serviceCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]serviceCall(nil), p.calls...)
}

// recordingObserver keeps every event.
type recordingObserver struct {
	mu       sync.Mutex
	statuses []Summary
	states   int
}

func (o *recordingObserver) BridgeStatusChanged(s Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
}

func (o *recordingObserver) DeviceStateChanged(string, string, mapping.Tag, mapping.Fields) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states++
}

func (o *recordingObserver) statusSequence() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Status, 0, len(o.statuses))
	for _, s := range o.statuses {
		out = append(out, s.Status)
	}
	return out
}

// memRepository is an in-memory Repository.
type memRepository struct {
	mu   sync.Mutex
	cfgs map[string]Config
	err  error
}

func newMemRepository() *memRepository {
	return &memRepository{cfgs: make(map[string]Config)}
}

func (r *memRepository) List(context.Context) ([]Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Config, 0, len(r.cfgs))
	for _, c := range r.cfgs {
		out = append(out, c.clone())
	}
	return out, r.err
}

func (r *memRepository) Get(_ context.Context, id string) (*Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cfgs[id]
	if !ok {
		return nil, ErrBridgeNotFound
	}
	cpy := c.clone()
	return &cpy, nil
}

func (r *memRepository) Create(_ context.Context, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.cfgs[cfg.ID] = cfg.clone()
	return nil
}

func (r *memRepository) Update(_ context.Context, cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cfgs[cfg.ID]; !ok {
		return ErrBridgeNotFound
	}
	r.cfgs[cfg.ID] = cfg.clone()
	return nil
}

func (r *memRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cfgs[id]; !ok {
		return ErrBridgeNotFound
	}
	delete(r.cfgs, id)
	return nil
}

func (r *memRepository) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cfgs), nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustApply(t *testing.T, store *entity.Store, id, state string, attrs entity.Attributes) {
	t.Helper()
	if err := store.Apply(entity.Snapshot{EntityID: id, State: state, Attributes: attrs}); err != nil {
		t.Fatalf("Apply(%s) error = %v", id, err)
	}
}

type testEnv struct {
	store    *entity.Store
	runtime  *fakeRuntime
	platform *fakePlatform
	observer *recordingObserver
	repo     *memRepository
	manager  *Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    entity.NewStore(),
		runtime:  &fakeRuntime{},
		platform: &fakePlatform{},
		observer: &recordingObserver{},
		repo:     newMemRepository(),
	}
	m, err := NewManager(ManagerOptions{
		Store:      env.store,
		Runtime:    env.runtime,
		Platform:   env.platform,
		Repository: env.repo,
		Observer:   env.observer,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	env.manager = m
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.Close(ctx); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return env
}

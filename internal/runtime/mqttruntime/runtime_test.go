package mqttruntime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/bridge"
	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

// fakeBroker is an in-memory Broker with retained-message semantics.
type fakeBroker struct {
	mu          sync.Mutex
	connected   bool
	retained    map[string][]byte
	subs        map[string]mqtt.MessageHandler
	publishes   int
	publishErr  error
	unsubscribe []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		connected: true,
		retained:  make(map[string][]byte),
		subs:      make(map[string]mqtt.MessageHandler),
	}
}

func (b *fakeBroker) PublishJSON(topic string, v any, retained bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return mqtt.ErrNotConnected
	}
	if b.publishErr != nil {
		return b.publishErr
	}
	b.publishes++
	if retained {
		b.retained[topic] = data
	}
	return nil
}

func (b *fakeBroker) ClearRetained(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return mqtt.ErrNotConnected
	}
	delete(b.retained, topic)
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return mqtt.ErrNotConnected
	}
	b.subs[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
	b.unsubscribe = append(b.unsubscribe, topic)
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) QoS() byte { return 1 }

func (b *fakeBroker) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

// deliver routes a message to the first matching subscription.
func (b *fakeBroker) deliver(topic string, payload []byte) error {
	b.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range b.subs {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	b.mu.Unlock()
	if handler == nil {
		return errors.New("no subscriber for " + topic)
	}
	return handler(topic, payload)
}

func (b *fakeBroker) retainedDoc(t *testing.T, topic string, v any) bool {
	t.Helper()
	b.mu.Lock()
	data, ok := b.retained[topic]
	b.mu.Unlock()
	if !ok {
		return false
	}
	if v != nil {
		if err := json.Unmarshal(data, v); err != nil {
			t.Fatalf("decoding %s: %v", topic, err)
		}
	}
	return true
}

func (b *fakeBroker) retainedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.retained)
}

func (b *fakeBroker) subscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func topicMatches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	s := strings.Split(topic, "/")
	if len(p) != len(s) {
		return false
	}
	for i := range p {
		if p[i] != "+" && p[i] != s[i] {
			return false
		}
	}
	return true
}

func onOffLight(entityID string) mapping.Representation {
	return mapping.Representation{
		EntityID:   entityID,
		Tag:        mapping.TagOnOffLight,
		DeviceType: mapping.DeviceType{Code: 0x0100, Name: "OnOffLight"},
		Clusters:   []string{"onOff"},
		Fields:     mapping.Fields{mapping.FieldOnOff: true},
	}
}

func openTestContext(t *testing.T) (*Runtime, *fakeBroker, bridge.PublishingContext) {
	t.Helper()
	broker := newFakeBroker()
	rt := New(broker, mqtt.NewTopics(""))
	pc, err := rt.OpenContext(context.Background(), bridge.Identity{BridgeID: "b1", Name: "Living Room", Port: 5540})
	if err != nil {
		t.Fatalf("OpenContext() error = %v", err)
	}
	t.Cleanup(func() { pc.Close() }) //nolint:errcheck
	return rt, broker, pc
}

func TestOpenContext_AnnouncesAndSubscribes(t *testing.T) {
	rt, broker, _ := openTestContext(t)

	var ann Announcement
	if !broker.retainedDoc(t, "grayhub/runtime/b1/bridge", &ann) {
		t.Fatal("bridge announcement not retained")
	}
	if ann.Name != "Living Room" || ann.Port != 5540 || ann.DeviceCount != 0 {
		t.Errorf("announcement = %+v", ann)
	}
	if n := broker.subscriptionCount(); n != 3 {
		t.Errorf("subscriptions = %d, want 3", n)
	}
	if rt.OpenCount() != 1 {
		t.Errorf("OpenCount() = %d, want 1", rt.OpenCount())
	}
}

func TestOpenContext_Rejects(t *testing.T) {
	rt, _, _ := openTestContext(t)

	if _, err := rt.OpenContext(context.Background(), bridge.Identity{BridgeID: "b1"}); !errors.Is(err, bridge.ErrBridgeRunning) {
		t.Errorf("second OpenContext() error = %v, want ErrBridgeRunning", err)
	}
	if _, err := rt.OpenContext(context.Background(), bridge.Identity{BridgeID: "a/b"}); !errors.Is(err, ErrInvalidBridgeID) {
		t.Errorf("OpenContext(a/b) error = %v, want ErrInvalidBridgeID", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rt.OpenContext(ctx, bridge.Identity{BridgeID: "b2"}); !errors.Is(err, context.Canceled) {
		t.Errorf("OpenContext(cancelled) error = %v, want context.Canceled", err)
	}
	if rt.OpenCount() != 1 {
		t.Errorf("OpenCount() = %d, want 1", rt.OpenCount())
	}
}

func TestOpenContext_BrokerDown(t *testing.T) {
	broker := newFakeBroker()
	broker.setConnected(false)
	rt := New(broker, mqtt.NewTopics(""))

	if _, err := rt.OpenContext(context.Background(), bridge.Identity{BridgeID: "b1"}); err == nil {
		t.Fatal("OpenContext() expected error with broker down")
	}
	if rt.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0 after failed open", rt.OpenCount())
	}
}

func TestPublish_AssignsEndpoints(t *testing.T) {
	_, broker, pc := openTestContext(t)
	ctx := context.Background()

	h1, err := pc.Publish(ctx, onOffLight("light.kitchen"))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	h2, err := pc.Publish(ctx, onOffLight("light.hall"))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if h1 != 2 || h2 != 3 {
		t.Errorf("handles = %d, %d; want 2, 3", h1, h2)
	}

	var cfg DeviceConfig
	if !broker.retainedDoc(t, "grayhub/runtime/b1/device/2/config", &cfg) {
		t.Fatal("device config not retained")
	}
	if cfg.Endpoint != 2 || cfg.Device.EntityID != "light.kitchen" || cfg.Device.DeviceType.Code != 0x0100 {
		t.Errorf("config = %+v", cfg)
	}

	var st DeviceState
	if !broker.retainedDoc(t, "grayhub/runtime/b1/device/3/state", &st) {
		t.Fatal("device state not retained")
	}
	if st.Fields[mapping.FieldOnOff] != true {
		t.Errorf("state = %+v", st)
	}

	var ann Announcement
	broker.retainedDoc(t, "grayhub/runtime/b1/bridge", &ann)
	if ann.DeviceCount != 2 {
		t.Errorf("announced DeviceCount = %d, want 2", ann.DeviceCount)
	}
}

func TestPublish_Failure(t *testing.T) {
	_, broker, pc := openTestContext(t)
	broker.mu.Lock()
	broker.publishErr = mqtt.ErrPublishFailed
	broker.mu.Unlock()

	if _, err := pc.Publish(context.Background(), onOffLight("light.kitchen")); !errors.Is(err, mqtt.ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
	if ch := pc.Commands(2); ch != nil {
		t.Error("failed publish left an endpoint behind")
	}
}

func TestSetState(t *testing.T) {
	_, broker, pc := openTestContext(t)
	ctx := context.Background()
	h, _ := pc.Publish(ctx, onOffLight("light.kitchen"))

	if err := pc.SetState(ctx, h, mapping.Fields{mapping.FieldOnOff: false}); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	var st DeviceState
	broker.retainedDoc(t, "grayhub/runtime/b1/device/2/state", &st)
	if st.Fields[mapping.FieldOnOff] != false {
		t.Errorf("state = %+v", st)
	}

	if err := pc.SetState(ctx, 99, mapping.Fields{}); !errors.Is(err, mapping.ErrProjectionDeferred) {
		t.Errorf("SetState(unknown) error = %v, want ErrProjectionDeferred", err)
	}

	broker.setConnected(false)
	if err := pc.SetState(ctx, h, mapping.Fields{mapping.FieldOnOff: true}); !errors.Is(err, mapping.ErrProjectionDeferred) {
		t.Errorf("SetState(disconnected) error = %v, want ErrProjectionDeferred", err)
	}
}

func TestCommands(t *testing.T) {
	_, broker, pc := openTestContext(t)
	h, _ := pc.Publish(context.Background(), onOffLight("light.kitchen"))
	cmds := pc.Commands(h)

	err := broker.deliver("grayhub/runtime/b1/device/2/command", []byte(`{"kind":"set_level","args":{"level":127}}`))
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	select {
	case cmd := <-cmds:
		if cmd.Kind != mapping.CommandSetLevel {
			t.Errorf("Kind = %q", cmd.Kind)
		}
		if v, ok := cmd.Float("level"); !ok || v != 127 {
			t.Errorf("level = %v, %v", v, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("command not delivered")
	}

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr bool
	}{
		{"bad json", "grayhub/runtime/b1/device/2/command", `{`, true},
		{"no kind", "grayhub/runtime/b1/device/2/command", `{"args":{}}`, true},
		{"unknown endpoint", "grayhub/runtime/b1/device/9/command", `{"kind":"turn_on"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := broker.deliver(tt.topic, []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("deliver() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
	if len(cmds) != 0 {
		t.Errorf("unexpected queued commands: %d", len(cmds))
	}
}

func TestCommands_QueueFull(t *testing.T) {
	_, broker, pc := openTestContext(t)
	h, _ := pc.Publish(context.Background(), onOffLight("light.kitchen"))

	for i := 0; i < commandBuffer+5; i++ {
		if err := broker.deliver("grayhub/runtime/b1/device/2/command", []byte(`{"kind":"toggle"}`)); err != nil {
			t.Fatalf("deliver() error = %v", err)
		}
	}
	if got := len(pc.Commands(h)); got != commandBuffer {
		t.Errorf("queued = %d, want %d", got, commandBuffer)
	}
}

func TestDetach(t *testing.T) {
	_, broker, pc := openTestContext(t)
	h, _ := pc.Publish(context.Background(), onOffLight("light.kitchen"))
	cmds := pc.Commands(h)

	pc.Detach(h)
	pc.Detach(h)

	if _, ok := <-cmds; ok {
		t.Error("command channel not closed by Detach")
	}
	if broker.retainedDoc(t, "grayhub/runtime/b1/device/2/config", nil) {
		t.Error("device config still retained after Detach")
	}
	if broker.retainedDoc(t, "grayhub/runtime/b1/device/2/state", nil) {
		t.Error("device state still retained after Detach")
	}
	if err := pc.SetState(context.Background(), h, mapping.Fields{}); !errors.Is(err, mapping.ErrProjectionDeferred) {
		t.Errorf("SetState() after Detach error = %v", err)
	}
}

func TestFabrics(t *testing.T) {
	_, broker, pc := openTestContext(t)

	if got := pc.Fabrics(); got == nil || len(got) != 0 {
		t.Errorf("initial Fabrics() = %#v, want empty", got)
	}

	payload := `[{"fabricIndex":1,"fabricId":"0x1","vendorId":4937,"label":"Home"},{"fabricIndex":2}]`
	if err := broker.deliver("grayhub/runtime/b1/fabrics", []byte(payload)); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	got := pc.Fabrics()
	if len(got) != 2 || got[0].VendorID != 4937 || got[0].Label != "Home" {
		t.Errorf("Fabrics() = %+v", got)
	}

	if err := broker.deliver("grayhub/runtime/b1/fabrics", nil); err != nil {
		t.Fatalf("deliver(empty) error = %v", err)
	}
	if len(pc.Fabrics()) != 0 {
		t.Error("empty payload should clear fabrics")
	}
	if err := broker.deliver("grayhub/runtime/b1/fabrics", []byte(`{}`)); err == nil {
		t.Error("non-array fabrics should be rejected")
	}
}

func TestRuntimeStatusError(t *testing.T) {
	_, broker, pc := openTestContext(t)

	if err := broker.deliver("grayhub/runtime/b1/status", []byte(`{"status":"ok"}`)); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	select {
	case <-pc.Done():
		t.Fatal("ok status closed the context")
	default:
	}

	if err := broker.deliver("grayhub/runtime/b1/status", []byte(`{"status":"error","error":"port 5540 in use"}`)); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	select {
	case <-pc.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after runtime error")
	}
	if err := pc.Err(); !errors.Is(err, ErrRuntimeFailed) || !strings.Contains(err.Error(), "port 5540") {
		t.Errorf("Err() = %v", err)
	}
}

func TestClose(t *testing.T) {
	rt, broker, pc := openTestContext(t)
	pc.Publish(context.Background(), onOffLight("light.kitchen")) //nolint:errcheck

	if err := pc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pc.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	select {
	case <-pc.Done():
	default:
		t.Error("Done not closed")
	}
	if pc.Err() != nil {
		t.Errorf("Err() after Close = %v, want nil", pc.Err())
	}
	if n := broker.retainedCount(); n != 0 {
		t.Errorf("retained documents after Close = %d, want 0", n)
	}
	if n := broker.subscriptionCount(); n != 0 {
		t.Errorf("subscriptions after Close = %d, want 0", n)
	}
	if rt.OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0", rt.OpenCount())
	}
	if _, err := pc.Publish(context.Background(), onOffLight("light.hall")); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrContextClosed", err)
	}
}

func TestRepublish(t *testing.T) {
	rt, broker, pc := openTestContext(t)
	h, _ := pc.Publish(context.Background(), onOffLight("light.kitchen"))
	pc.SetState(context.Background(), h, mapping.Fields{mapping.FieldOnOff: false}) //nolint:errcheck

	// A broker restart without persistence loses every retained message.
	broker.mu.Lock()
	broker.retained = make(map[string][]byte)
	broker.mu.Unlock()

	rt.Republish()

	if !broker.retainedDoc(t, "grayhub/runtime/b1/bridge", nil) {
		t.Error("announcement not republished")
	}
	if !broker.retainedDoc(t, "grayhub/runtime/b1/device/2/config", nil) {
		t.Error("device config not republished")
	}
	var st DeviceState
	broker.retainedDoc(t, "grayhub/runtime/b1/device/2/state", &st)
	if st.Fields[mapping.FieldOnOff] != false {
		t.Errorf("republished state = %+v, want last projected fields", st)
	}
}

// recordingPlatform records service calls.
type recordingPlatform struct {
	mu    sync.Mutex
	calls []string
}

func (p *recordingPlatform) Connected() bool { return true }

func (p *recordingPlatform) CallService(_ context.Context, domain, service string, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, domain+"."+service+":"+data["entity_id"].(string))
	return nil
}

func (p *recordingPlatform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func TestManagerOverMQTT(t *testing.T) {
	store := entity.NewStore()
	if err := store.Apply(entity.Snapshot{EntityID: "light.kitchen", State: "on"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	broker := newFakeBroker()
	rt := New(broker, mqtt.NewTopics(""))
	platform := &recordingPlatform{}

	m, err := bridge.NewManager(bridge.ManagerOptions{Store: store, Runtime: rt, Platform: platform})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.Close(ctx) //nolint:errcheck
	})

	sum, err := m.Start(context.Background(), bridge.Config{ID: "b1", Name: "Kitchen", Port: 5540, Entities: []string{"light.kitchen"}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sum.Status != bridge.StatusRunning || sum.DeviceCount != 1 {
		t.Fatalf("Start() summary = %+v", sum)
	}
	if !broker.retainedDoc(t, "grayhub/runtime/b1/device/2/config", nil) {
		t.Fatal("device config not published")
	}

	if err := broker.deliver("grayhub/runtime/b1/device/2/command", []byte(`{"kind":"turn_off"}`)); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(platform.Calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := platform.Calls(); len(got) != 1 || got[0] != "light.turn_off:light.kitchen" {
		t.Errorf("platform calls = %v", got)
	}

	if err := m.Stop(context.Background(), "b1"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if n := broker.retainedCount(); n != 0 {
		t.Errorf("retained documents after Stop = %d, want 0", n)
	}
	if rt.OpenCount() != 0 {
		t.Errorf("OpenCount() after Stop = %d", rt.OpenCount())
	}
}

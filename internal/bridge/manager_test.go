package bridge

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

func seedLivingRoom(t *testing.T, store *entity.Store) {
	t.Helper()
	mustApply(t, store, "light.kitchen", "on", entity.Attributes{
		"supported_color_modes": []any{"brightness"},
		"brightness":            128.0,
	})
	mustApply(t, store, "sensor.living_temperature", "21.5", entity.Attributes{
		"device_class":        "temperature",
		"unit_of_measurement": "°C",
	})
	mustApply(t, store, "fan.ceiling", "on", entity.Attributes{"percentage": 50.6})
	mustApply(t, store, "sensor.router_rssi", "-60", entity.Attributes{"device_class": "signal_strength"})
	mustApply(t, store, "binary_sensor.washer", "off", entity.Attributes{"device_class": "vibration"})
	mustApply(t, store, "weather.home", "sunny", nil)
}

func livingRoomConfig() Config {
	return Config{
		ID:   "living",
		Name: "Living Room",
		Port: 5540,
		Entities: []string{
			"light.kitchen",
			"sensor.living_temperature",
			"fan.ceiling",
			"sensor.router_rssi",
			"binary_sensor.washer",
			"weather.home",
			"light.never_reported",
		},
	}
}

func TestNewManager_RequiresDependencies(t *testing.T) {
	store := entity.NewStore()
	tests := []struct {
		name string
		opts ManagerOptions
	}{
		{"no store", ManagerOptions{Runtime: &fakeRuntime{}, Platform: &fakePlatform{}}},
		{"no runtime", ManagerOptions{Store: store, Platform: &fakePlatform{}}},
		{"no platform", ManagerOptions{Store: store, Runtime: &fakeRuntime{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(tt.opts); err == nil {
				t.Error("NewManager() expected error")
			}
		})
	}
}

func TestManager_StartMapsOnlyMappableEntities(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	s, err := env.manager.Start(ctx, livingRoomConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Status != StatusRunning {
		t.Errorf("Status = %q, want running", s.Status)
	}
	if s.DeviceCount != 3 {
		t.Errorf("DeviceCount = %d, want 3", s.DeviceCount)
	}

	pub := env.runtime.last(t)
	if pub.publishedCount() != 3 {
		t.Errorf("published = %d, want 3", pub.publishedCount())
	}
	for _, id := range []string{"light.kitchen", "sensor.living_temperature", "fan.ceiling"} {
		if pub.handleOf(id) == 0 {
			t.Errorf("%s not published", id)
		}
	}
	if got := env.store.TotalSubscribers(); got != 3 {
		t.Errorf("TotalSubscribers() = %d, want 3", got)
	}

	devices, err := env.manager.Devices("living")
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.EntityID)
	}
	want := []string{"light.kitchen", "sensor.living_temperature", "fan.ceiling"}
	if !slices.Equal(ids, want) {
		t.Errorf("Devices() = %v, want %v in configuration order", ids, want)
	}

	if err := env.manager.Stop(ctx, "living"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if pub.detachedCount() != 3 {
		t.Errorf("detached = %d, want 3", pub.detachedCount())
	}
	if got := env.store.TotalSubscribers(); got != 0 {
		t.Errorf("TotalSubscribers() after stop = %d, want 0", got)
	}
	if !pub.isClosed() {
		t.Error("publishing context not closed on stop")
	}
	status, _ := env.manager.Status("living")
	if status != StatusStopped {
		t.Errorf("Status() = %q, want stopped", status)
	}
	if devices, _ := env.manager.Devices("living"); len(devices) != 0 {
		t.Errorf("Devices() after stop = %d, want 0", len(devices))
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := env.manager.Stop(ctx, "living"); err != nil {
			t.Fatalf("Stop() #%d error = %v", i, err)
		}
	}
	if err := env.manager.Stop(ctx, "missing"); !errors.Is(err, ErrBridgeNotFound) {
		t.Errorf("Stop(missing) error = %v, want ErrBridgeNotFound", err)
	}
}

func TestManager_StartupFailure(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	env.runtime.openErr = errors.New("port 5540 unavailable")
	s, err := env.manager.Start(ctx, livingRoomConfig())
	if !errors.Is(err, ErrStartupFailed) {
		t.Fatalf("Start() error = %v, want ErrStartupFailed", err)
	}
	if s.Status != StatusError {
		t.Errorf("Status = %q, want error", s.Status)
	}
	if s.Error == "" {
		t.Error("summary should carry the startup error")
	}
	if got := env.store.TotalSubscribers(); got != 0 {
		t.Errorf("TotalSubscribers() = %d, want 0", got)
	}

	// Other bridges are unaffected.
	env.runtime.mu.Lock()
	env.runtime.openErr = nil
	env.runtime.mu.Unlock()
	other := Config{ID: "kitchen", Name: "Kitchen", Port: 5541, Entities: []string{"light.kitchen"}}
	s, err = env.manager.Start(ctx, other)
	if err != nil {
		t.Fatalf("Start(other) error = %v", err)
	}
	if s.Status != StatusRunning {
		t.Errorf("other Status = %q, want running", s.Status)
	}

	// A failed bridge can be started again.
	s, err = env.manager.StartByID(ctx, "living")
	if err != nil {
		t.Fatalf("StartByID() error = %v", err)
	}
	if s.Status != StatusRunning || s.Error != "" {
		t.Errorf("after restart = %+v, want running without error", s)
	}
}

func TestManager_StatusSequence(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.manager.Stop(ctx, "living"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// Starting is reported externally as stopped.
	want := []Status{StatusStopped, StatusRunning, StatusStopped}
	if got := env.observer.statusSequence(); !slices.Equal(got, want) {
		t.Errorf("status events = %v, want %v", got, want)
	}
}

func TestManager_RejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	samePort := Config{ID: "other", Name: "Other", Port: 5540}
	if _, err := env.manager.Start(ctx, samePort); !errors.Is(err, ErrPortInUse) {
		t.Errorf("Start(same port) error = %v, want ErrPortInUse", err)
	}
	sameID := Config{ID: "living", Name: "Again", Port: 5600}
	if _, err := env.manager.Start(ctx, sameID); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Start(same id) error = %v, want ErrDuplicateID", err)
	}
	if _, err := env.manager.StartByID(ctx, "living"); !errors.Is(err, ErrBridgeRunning) {
		t.Errorf("StartByID(running) error = %v, want ErrBridgeRunning", err)
	}
	if _, err := env.manager.Start(ctx, Config{Name: "", Port: 0}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Start(invalid) error = %v, want ErrInvalidConfig", err)
	}
}

func TestManager_ProjectsStateChanges(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pub := env.runtime.last(t)

	mustApply(t, env.store, "fan.ceiling", "on", entity.Attributes{"percentage": 75.4})
	waitFor(t, "fan projection", func() bool {
		fields, _ := pub.lastState("fan.ceiling")
		return fields != nil && fields[mapping.FieldSpeedSetting] == 75
	})

	mustApply(t, env.store, "fan.ceiling", "unavailable", nil)
	waitFor(t, "fan unavailable projection", func() bool {
		fields, _ := pub.lastState("fan.ceiling")
		return fields[mapping.FieldOnOff] == false && fields[mapping.FieldReachable] == false
	})

	if calls := env.platform.Calls(); len(calls) != 0 {
		t.Errorf("state changes issued %d platform actions, want 0", len(calls))
	}

	waitFor(t, "observer state events", func() bool {
		env.observer.mu.Lock()
		defer env.observer.mu.Unlock()
		return env.observer.states >= 2
	})
}

func TestManager_FanTurnOnInvokesOnce(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pub := env.runtime.last(t)
	pub.send(t, "fan.ceiling", mapping.Command{Kind: mapping.CommandTurnOn})

	waitFor(t, "platform action", func() bool { return len(env.platform.Calls()) == 1 })
	time.Sleep(50 * time.Millisecond)

	calls := env.platform.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want exactly 1", len(calls))
	}
	c := calls[0]
	if c.Domain != "fan" || c.Service != "turn_on" {
		t.Errorf("call = %s.%s, want fan.turn_on", c.Domain, c.Service)
	}
	if c.Data["entity_id"] != "fan.ceiling" {
		t.Errorf("entity_id = %v, want fan.ceiling", c.Data["entity_id"])
	}
}

func TestManager_UnsupportedCommandIgnored(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pub := env.runtime.last(t)
	pub.send(t, "sensor.living_temperature", mapping.Command{Kind: mapping.CommandTurnOn})
	pub.send(t, "fan.ceiling", mapping.Command{Kind: mapping.CommandLock})

	waitFor(t, "commands counted", func() bool {
		var n uint64
		devices, _ := env.manager.Devices("living")
		for _, d := range devices {
			n += d.Commands
		}
		return n == 2
	})
	if calls := env.platform.Calls(); len(calls) != 0 {
		t.Errorf("calls = %d, want 0", len(calls))
	}
}

func TestManager_ActionErrorNotRetried(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	env.platform.err = errors.New("service unavailable")
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pub := env.runtime.last(t)
	pub.send(t, "light.kitchen", mapping.Command{Kind: mapping.CommandTurnOff})

	waitFor(t, "platform action", func() bool { return len(env.platform.Calls()) == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := len(env.platform.Calls()); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
	if s, _ := env.manager.Get("living"); s.Status != StatusRunning {
		t.Errorf("Status = %q, want running", s.Status)
	}
}

func TestManager_DeferredProjectionCounted(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pub := env.runtime.last(t)
	pub.setDeferred(t, "light.kitchen", true)

	mustApply(t, env.store, "light.kitchen", "off", entity.Attributes{"supported_color_modes": []any{"brightness"}})
	waitFor(t, "deferred projection", func() bool {
		devices, _ := env.manager.Devices("living")
		for _, d := range devices {
			if d.EntityID == "light.kitchen" {
				return d.Deferred >= 1 && d.Failures == 0
			}
		}
		return false
	})
}

func TestManager_DeferralIsPerDevice(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pub := env.runtime.last(t)
	pub.setDeferred(t, "light.kitchen", true)

	mustApply(t, env.store, "light.kitchen", "off", entity.Attributes{"supported_color_modes": []any{"brightness"}})
	mustApply(t, env.store, "fan.ceiling", "on", entity.Attributes{"percentage": 75.4})

	waitFor(t, "fan projection while light is deferred", func() bool {
		fields, _ := pub.lastState("fan.ceiling")
		return fields != nil && fields[mapping.FieldSpeedSetting] == 75
	})
	waitFor(t, "light deferral counted", func() bool {
		devices, _ := env.manager.Devices("living")
		for _, d := range devices {
			if d.EntityID == "light.kitchen" {
				return d.Deferred >= 1
			}
		}
		return false
	})
	if _, n := pub.lastState("light.kitchen"); n != 0 {
		t.Fatalf("light.kitchen projected %d times while deferred", n)
	}

	pub.setDeferred(t, "light.kitchen", false)
	mustApply(t, env.store, "light.kitchen", "on", entity.Attributes{
		"supported_color_modes": []any{"brightness"},
		"brightness":            255.0,
	})
	waitFor(t, "light projection after deferral cleared", func() bool {
		fields, _ := pub.lastState("light.kitchen")
		return fields != nil && fields[mapping.FieldOnOff] == true
	})
}

func TestManager_StopDoesNotWaitForActions(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	hold := make(chan struct{})
	env.platform.hold = hold
	t.Cleanup(func() { close(hold) })
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pub := env.runtime.last(t)
	pub.send(t, "fan.ceiling", mapping.Command{Kind: mapping.CommandTurnOn})
	waitFor(t, "platform action in flight", func() bool { return len(env.platform.Calls()) == 1 })

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := env.manager.Stop(stopCtx, "living"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop() took %v with an action in flight", elapsed)
	}
	if s, _ := env.manager.Get("living"); s.Status != StatusStopped {
		t.Errorf("Status = %q, want stopped", s.Status)
	}
}

func TestManager_CompositeRelatedEntity(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	mustApply(t, env.store, "sensor.living_humidity", "40", entity.Attributes{"device_class": "humidity"})
	ctx := context.Background()

	cfg := Config{
		ID:       "climate",
		Name:     "Climate",
		Port:     5550,
		Entities: []string{"sensor.living_temperature"},
		Mappings: map[string]mapping.Config{
			"sensor.living_temperature": {HumidityEntity: "sensor.living_humidity"},
		},
	}
	if _, err := env.manager.Start(ctx, cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := env.store.SubscriberCount("sensor.living_humidity"); got != 1 {
		t.Errorf("humidity subscribers = %d, want 1", got)
	}

	pub := env.runtime.last(t)
	mustApply(t, env.store, "sensor.living_humidity", "55", entity.Attributes{"device_class": "humidity"})
	waitFor(t, "re-projection on related change", func() bool {
		_, n := pub.lastState("sensor.living_temperature")
		return n >= 1
	})

	if err := env.manager.Stop(ctx, "climate"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := env.store.TotalSubscribers(); got != 0 {
		t.Errorf("TotalSubscribers() = %d, want 0", got)
	}
}

func TestManager_ContextFailureMovesToError(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pub := env.runtime.last(t)
	pub.fail(errors.New("runtime crashed"))

	waitFor(t, "error status", func() bool {
		s, _ := env.manager.Status("living")
		return s == StatusError
	})
	s, _ := env.manager.Get("living")
	if s.DeviceCount != 0 {
		t.Errorf("DeviceCount = %d, want 0", s.DeviceCount)
	}
	if got := env.store.TotalSubscribers(); got != 0 {
		t.Errorf("TotalSubscribers() = %d, want 0", got)
	}
}

func TestManager_StopCancelsInFlightStart(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	env.runtime.gate = make(chan struct{})
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := env.manager.Start(ctx, livingRoomConfig())
		errCh <- err
	}()

	waitFor(t, "starting", func() bool { return env.manager.Totals().Starting == 1 })
	if err := env.manager.Stop(ctx, "living"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	if s, _ := env.manager.Status("living"); s != StatusStopped {
		t.Errorf("Status() = %q, want stopped", s)
	}
	if got := env.store.TotalSubscribers(); got != 0 {
		t.Errorf("TotalSubscribers() = %d, want 0", got)
	}
}

func TestManager_CreateUpdateRemove(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	cfg := livingRoomConfig()
	cfg.ID = ""
	cfg.AutoStart = true
	s, err := env.manager.Create(ctx, cfg)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" {
		t.Fatal("Create() did not assign an id")
	}
	if s.Status != StatusRunning || s.DeviceCount != 3 {
		t.Errorf("Create() = %+v, want running with 3 devices", s)
	}
	if n, _ := env.repo.Count(ctx); n != 1 {
		t.Errorf("persisted = %d, want 1", n)
	}

	update := livingRoomConfig()
	update.Name = "Lounge"
	update.Entities = []string{"light.kitchen"}
	s, err = env.manager.Update(ctx, s.ID, update)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if s.Name != "Lounge" || s.Status != StatusRunning || s.DeviceCount != 1 {
		t.Errorf("Update() = %+v, want Lounge running with 1 device", s)
	}
	if got := env.store.TotalSubscribers(); got != 1 {
		t.Errorf("TotalSubscribers() after rebuild = %d, want 1", got)
	}
	stored, err := env.repo.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("repo.Get() error = %v", err)
	}
	if stored.Name != "Lounge" || stored.CreatedAt.IsZero() {
		t.Errorf("stored = %+v, want renamed with created_at kept", stored)
	}

	if err := env.manager.Remove(ctx, s.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := env.manager.Get(s.ID); !errors.Is(err, ErrBridgeNotFound) {
		t.Errorf("Get() after remove error = %v, want ErrBridgeNotFound", err)
	}
	if n, _ := env.repo.Count(ctx); n != 0 {
		t.Errorf("persisted after remove = %d, want 0", n)
	}
	if got := env.store.TotalSubscribers(); got != 0 {
		t.Errorf("TotalSubscribers() after remove = %d, want 0", got)
	}
}

func TestManager_CreateWithoutAutoStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s, err := env.manager.Create(ctx, Config{Name: "Garage", Port: 5560})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.Status != StatusStopped {
		t.Errorf("Status = %q, want stopped", s.Status)
	}
	if _, err := env.manager.Create(ctx, Config{Name: "Shed", Port: 5560}); !errors.Is(err, ErrPortInUse) {
		t.Errorf("Create(same port) error = %v, want ErrPortInUse", err)
	}
}

func TestManager_CreatePersistFailureUnregisters(t *testing.T) {
	env := newTestEnv(t)
	env.repo.err = errors.New("disk full")

	if _, err := env.manager.Create(context.Background(), Config{ID: "x", Name: "X", Port: 5570}); err == nil {
		t.Fatal("Create() expected error")
	}
	if len(env.manager.List()) != 0 {
		t.Error("failed create left a registered bridge")
	}
}

func TestManager_ListSortedByName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i, name := range []string{"kitchen", "Attic", "bedroom"} {
		cfg := Config{ID: name, Name: name, Port: 6000 + i}
		if _, err := env.manager.Create(ctx, cfg); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	var names []string
	for _, s := range env.manager.List() {
		names = append(names, s.Name)
	}
	want := []string{"Attic", "bedroom", "kitchen"}
	if !slices.Equal(names, want) {
		t.Errorf("List() names = %v, want %v", names, want)
	}
}

func TestManager_Restore(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	auto := livingRoomConfig()
	auto.AutoStart = true
	manual := Config{ID: "spare", Name: "Spare", Port: 5599, Entities: []string{"fan.ceiling"}}
	for _, c := range []Config{auto, manual} {
		if err := env.repo.Create(ctx, &c); err != nil {
			t.Fatalf("repo.Create() error = %v", err)
		}
	}

	if err := env.manager.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	totals := env.manager.Totals()
	if totals.Bridges != 2 || totals.Running != 1 || totals.Stopped != 1 {
		t.Errorf("Totals() = %+v, want 2 bridges, 1 running, 1 stopped", totals)
	}
	if totals.Devices != 3 {
		t.Errorf("Totals().Devices = %d, want 3", totals.Devices)
	}
}

func TestManager_CloseStopsEverything(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.manager.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := env.store.TotalSubscribers(); got != 0 {
		t.Errorf("TotalSubscribers() = %d, want 0", got)
	}
	if _, err := env.manager.Start(ctx, Config{ID: "late", Name: "Late", Port: 7000}); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Start() after Close error = %v, want ErrManagerClosed", err)
	}
}

func TestManager_ResyncReprojects(t *testing.T) {
	env := newTestEnv(t)
	seedLivingRoom(t, env.store)
	ctx := context.Background()

	if _, err := env.manager.Start(ctx, livingRoomConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pub := env.runtime.last(t)
	env.manager.Resync()

	waitFor(t, "resync projections", func() bool {
		for _, id := range []string{"light.kitchen", "sensor.living_temperature", "fan.ceiling"} {
			if _, n := pub.lastState(id); n == 0 {
				return false
			}
		}
		return true
	})
}

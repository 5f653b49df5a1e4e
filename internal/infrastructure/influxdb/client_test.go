package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
)

// fakeInflux serves the ping and write endpoints of the v2 API.
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
	query  []string
}

func newFakeInflux(t *testing.T) (*fakeInflux, *httptest.Server) {
	t.Helper()
	f := &fakeInflux{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck
			f.mu.Lock()
			f.writes = append(f.writes, string(body))
			f.query = append(f.query, r.URL.RawQuery)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "grayhub-test-token",
		Org:           "grayhub",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect(t *testing.T) {
	_, srv := newFakeInflux(t)

	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := influxdb.Connect(testConfig("http://127.0.0.1:1"))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	_, srv := newFakeInflux(t)
	cfg := testConfig(srv.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
}

func TestHealthCheck_Cancelled(t *testing.T) {
	_, srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should fail for a cancelled context")
	}
}

func TestWritePoint(t *testing.T) {
	f, srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WritePoint(influxdb.MeasurementDeviceState,
		map[string]string{"bridge_id": "b1", "entity_id": "sensor.temp"},
		map[string]any{"temperatureMeasurement.measuredValue": 2150.0})
	client.WritePointWithTime(influxdb.MeasurementBridgeStatus,
		map[string]string{"bridge_id": "b1"},
		map[string]any{"running": true},
		time.Unix(1700000000, 0))
	// No fields: dropped.
	client.WritePoint("empty", nil, nil)
	client.Flush()

	body := f.body()
	if !strings.Contains(body, "device_state,bridge_id=b1,entity_id=sensor.temp temperatureMeasurement.measuredValue=2150") {
		t.Errorf("device_state line missing from %q", body)
	}
	if !strings.Contains(body, "bridge_status,bridge_id=b1 running=true 1700000000000000000") {
		t.Errorf("bridge_status line missing from %q", body)
	}
	if strings.Contains(body, "empty") {
		t.Errorf("empty point written: %q", body)
	}

	f.mu.Lock()
	q := strings.Join(f.query, "&")
	f.mu.Unlock()
	if !strings.Contains(q, "bucket=telemetry") || !strings.Contains(q, "org=grayhub") {
		t.Errorf("write query = %q", q)
	}
}

func TestWritePoint_DefaultTags(t *testing.T) {
	f, srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.SetDefaultTags(map[string]string{"site": "home", "bridge_id": "default"})
	client.WritePoint(influxdb.MeasurementBridgeStatus,
		map[string]string{"bridge_id": "b1"},
		map[string]any{"running": true})
	client.WritePoint("empty", nil, nil)
	client.Flush()

	if body := f.body(); !strings.Contains(body, "bridge_status,bridge_id=b1,site=home running=true") {
		t.Errorf("tagged line missing from %q", body)
	}
	if got := client.Stats(); got.Written != 1 || got.Failed != 0 {
		t.Errorf("Stats() = %+v, want 1 written", got)
	}
}

func TestWriteAfterClose(t *testing.T) {
	f, srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	client.WritePoint("late", nil, map[string]any{"v": 1.0})
	client.Flush()
	if strings.Contains(f.body(), "late") {
		t.Error("point written after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

package telemetry

import (
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-hub/internal/bridge"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
}

type fakeWriter struct {
	mu     sync.Mutex
	points []point
}

func (w *fakeWriter) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, point{measurement, tags, fields})
}

func TestRecorder_DeviceStateChanged(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w)

	r.DeviceStateChanged("b1", "fan.ceiling", mapping.TagFan, mapping.Fields{
		mapping.FieldOnOff:        true,
		mapping.FieldSpeedSetting: 51,
		"fanControl.percent":      nil,
		"basic.label":             "Ceiling",
	})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.measurement != influxdb.MeasurementDeviceState {
		t.Errorf("measurement = %q", p.measurement)
	}
	if p.tags["bridge_id"] != "b1" || p.tags["entity_id"] != "fan.ceiling" || p.tags["device_type"] != "fan" {
		t.Errorf("tags = %v", p.tags)
	}
	if p.fields[mapping.FieldOnOff] != true {
		t.Errorf("onOff = %v", p.fields[mapping.FieldOnOff])
	}
	if p.fields[mapping.FieldSpeedSetting] != 51.0 {
		t.Errorf("speed = %v (%T), want float64 51", p.fields[mapping.FieldSpeedSetting], p.fields[mapping.FieldSpeedSetting])
	}
	if _, ok := p.fields["fanControl.percent"]; ok {
		t.Error("nil field should be skipped")
	}
	if _, ok := p.fields["basic.label"]; ok {
		t.Error("string field should be skipped")
	}
}

func TestRecorder_SkipsEmpty(t *testing.T) {
	w := &fakeWriter{}
	NewRecorder(w).DeviceStateChanged("b1", "sensor.t", mapping.TagTemperatureSensor, mapping.Fields{"x": nil})
	if len(w.points) != 0 {
		t.Errorf("points = %d, want 0", len(w.points))
	}
}

func TestRecorder_BridgeStatusChanged(t *testing.T) {
	w := &fakeWriter{}
	NewRecorder(w).BridgeStatusChanged(bridge.Summary{
		ID:            "b1",
		Name:          "Living Room",
		Status:        bridge.StatusRunning,
		DeviceCount:   3,
		Commissioning: bridge.Commissioning{Fabrics: []bridge.Fabric{{FabricIndex: 1}}},
	})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.measurement != influxdb.MeasurementBridgeStatus || p.tags["bridge_name"] != "Living Room" {
		t.Errorf("point = %+v", p)
	}
	if p.fields["running"] != true || p.fields["device_count"] != 3 || p.fields["fabrics"] != 1 || p.fields["status"] != "running" {
		t.Errorf("fields = %v", p.fields)
	}
}

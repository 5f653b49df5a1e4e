// Package telemetry records bridge activity as time series.
package telemetry

import (
	"github.com/nerrad567/gray-logic-hub/internal/bridge"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hub/internal/mapping"
)

// PointWriter is the part of the InfluxDB client the recorder uses.
// Writes must not block.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any)
}

// Recorder is a bridge.Observer that writes device fields and bridge
// status changes to a PointWriter.
type Recorder struct {
	w PointWriter
}

var _ bridge.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to w.
func NewRecorder(w PointWriter) *Recorder {
	return &Recorder{w: w}
}

// DeviceStateChanged writes the numeric and boolean fields of a projection.
// Unknown (nil) and non-scalar values are skipped.
func (r *Recorder) DeviceStateChanged(bridgeID, entityID string, tag mapping.Tag, fields mapping.Fields) {
	values := pointFields(fields)
	if len(values) == 0 {
		return
	}
	r.w.WritePoint(influxdb.MeasurementDeviceState, map[string]string{
		"bridge_id":   bridgeID,
		"entity_id":   entityID,
		"device_type": string(tag),
	}, values)
}

// BridgeStatusChanged writes a bridge status sample.
func (r *Recorder) BridgeStatusChanged(s bridge.Summary) {
	r.w.WritePoint(influxdb.MeasurementBridgeStatus, map[string]string{
		"bridge_id":   s.ID,
		"bridge_name": s.Name,
	}, map[string]any{
		"status":       string(s.Status),
		"running":      s.Status == bridge.StatusRunning,
		"device_count": s.DeviceCount,
		"fabrics":      len(s.Commissioning.Fabrics),
	})
}

func pointFields(fields mapping.Fields) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch n := v.(type) {
		case bool:
			out[k] = n
		case float64:
			out[k] = n
		case float32:
			out[k] = float64(n)
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		case uint8:
			out[k] = float64(n)
		case uint16:
			out[k] = float64(n)
		case uint32:
			out[k] = float64(n)
		}
	}
	return out
}

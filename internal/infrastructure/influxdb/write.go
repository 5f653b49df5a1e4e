package influxdb

import (
	"maps"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the hub.
const (
	MeasurementDeviceState  = "device_state"
	MeasurementBridgeStatus = "bridge_status"
)

// WritePoint writes a point stamped now. Writes are dropped while
// disconnected.
//
// Example:
//
//	client.WritePoint("bridge_status",
//	    map[string]string{"bridge_id": "3f2a"},
//	    map[string]any{"device_count": 12, "running": true})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp. Points
// without fields are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, c.mergeTags(tags), fields, timestamp))
	c.written.Add(1)
}

func (c *Client) mergeTags(tags map[string]string) map[string]string {
	c.mu.RLock()
	defaults := c.defaultTags
	c.mu.RUnlock()
	if len(defaults) == 0 {
		return tags
	}
	merged := maps.Clone(defaults)
	maps.Copy(merged, tags)
	return merged
}

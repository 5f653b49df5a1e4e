// Package influxdb provides InfluxDB connectivity for bridge telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks. The hub writes
// two measurements:
//
//   - device_state: numeric and boolean fields of every projection, tagged
//     with bridge_id, entity_id and device_type
//   - bridge_status: a sample per bridge status change
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
// Writes are batched according to batch_size and flush_interval; errors
// are delivered asynchronously to the SetOnError callback.
package influxdb

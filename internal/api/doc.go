// Package api implements the HTTP REST API and WebSocket server of the hub.
//
// This package provides:
//   - REST endpoints for bridge CRUD, start/stop and device listings
//   - Health, readiness, system info and metrics endpoints
//   - WebSocket hub broadcasting bridge status and device state changes
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - JWT guard on mutating routes when a secret is configured
//
// # Graceful Degradation
//
// The server runs without MQTT or InfluxDB; the metrics and readiness
// output reports what is missing.
package api

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/bridge"
)

// readinessTimeout bounds the dependency checks of the readiness probe.
const readinessTimeout = 2 * time.Second

// Overall health values.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version,omitempty"`
	Services HealthServices `json:"services"`
	Bridges  bridge.Totals  `json:"bridges"`
}

// HealthServices reports the external services the hub depends on.
type HealthServices struct {
	HomeAssistant ServiceStatus  `json:"homeAssistant"`
	MQTT          *ServiceStatus `json:"mqtt,omitempty"`
}

// ServiceStatus is the connection state of one service.
type ServiceStatus struct {
	Connected bool `json:"connected"`
}

// DeriveHealth computes the overall status. Only stopped bridges degrade
// health; starting ones report as stopped, errored ones do not count. A
// platform outage is unhealthy regardless of bridges.
func DeriveHealth(platformConnected bool, totals bridge.Totals) string {
	if !platformConnected {
		return HealthUnhealthy
	}
	if totals.Stopped+totals.Starting > 0 {
		return HealthDegraded
	}
	return HealthHealthy
}

// handleHealth reports aggregate health. Unhealthy answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := s.platform.Connected()
	totals := s.bridges.Totals()

	resp := HealthResponse{
		Status:  DeriveHealth(connected, totals),
		Version: s.version,
		Services: HealthServices{
			HomeAssistant: ServiceStatus{Connected: connected},
		},
		Bridges: totals,
	}
	if s.mqtt != nil {
		resp.Services.MQTT = &ServiceStatus{Connected: s.mqtt.IsConnected()}
	}

	status := http.StatusOK
	if resp.Status == HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleLive answers as long as the process serves HTTP.
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReady is ready iff the platform is connected. Database and
// telemetry checks are reported but never decide readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := map[string]string{}
	ready := s.platform.Connected()
	if ready {
		checks["homeAssistant"] = "ok"
	} else {
		checks["homeAssistant"] = "disconnected"
	}

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			checks["database"] = err.Error()
		} else {
			checks["database"] = "ok"
		}
	}

	if s.telemetry != nil {
		if err := s.telemetry.HealthCheck(ctx); err != nil {
			checks["influxdb"] = err.Error()
		} else {
			checks["influxdb"] = "ok"
		}
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}

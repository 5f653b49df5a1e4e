package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/bridge"
)

// BridgeDetail is a bridge summary plus its stored definition.
type BridgeDetail struct {
	bridge.Summary
	Config bridge.Config `json:"config"`
}

// handleListBridges returns all bridges in dashboard order.
func (s *Server) handleListBridges(w http.ResponseWriter, _ *http.Request) {
	bridges := s.bridges.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"bridges": bridges,
		"count":   len(bridges),
	})
}

// handleCreateBridge persists a new bridge and starts it when autoStart is set.
func (s *Server) handleCreateBridge(w http.ResponseWriter, r *http.Request) {
	var cfg bridge.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	summary, err := s.bridges.Create(r.Context(), cfg)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionCreate, summary.ID, map[string]any{
		"name":     summary.Name,
		"port":     summary.Port,
		"entities": len(cfg.Entities),
	})
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleGetBridge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	summary, err := s.bridges.Get(id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	cfg, err := s.bridges.Config(id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BridgeDetail{Summary: summary, Config: cfg})
}

// handleUpdateBridge replaces the definition; a running bridge is rebuilt.
func (s *Server) handleUpdateBridge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cfg bridge.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cfg.ID != "" && cfg.ID != id {
		writeBadRequest(w, "id in body does not match path")
		return
	}

	summary, err := s.bridges.Update(r.Context(), id, cfg)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionUpdate, id, map[string]any{
		"name":     summary.Name,
		"port":     summary.Port,
		"entities": len(cfg.Entities),
	})
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeleteBridge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.bridges.Remove(r.Context(), id); err != nil {
		writeBridgeError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionDelete, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartBridge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := s.bridges.StartByID(r.Context(), id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionStart, id, map[string]any{"devices": summary.DeviceCount})
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStopBridge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.bridges.Stop(r.Context(), id); err != nil {
		writeBridgeError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionStop, id, nil)
	summary, err := s.bridges.Get(id)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleBridgeDevices lists the live mappings of a bridge.
func (s *Server) handleBridgeDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.bridges.Devices(chi.URLParam(r, "id"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

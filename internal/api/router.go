package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Probes and introspection (no auth required)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/health/live", s.handleLive)
	r.Get("/api/health/ready", s.handleReady)
	r.Get("/api/system/info", s.handleSystemInfo)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/metrics", s.handleMetrics)
		r.Get("/audit", s.handleListAudit)
		r.Get(s.wsPath(), s.handleWebSocket)

		r.Route("/bridges", func(r chi.Router) {
			r.Get("/", s.handleListBridges)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetBridge)
				r.Get("/devices", s.handleBridgeDevices)

				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)
					r.Put("/", s.handleUpdateBridge)
					r.Delete("/", s.handleDeleteBridge)
					r.Post("/start", s.handleStartBridge)
					r.Post("/stop", s.handleStopBridge)
				})
			})

			r.With(s.authMiddleware).Post("/", s.handleCreateBridge)
		})
	})

	return r
}

// wsPath is the WebSocket route relative to /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

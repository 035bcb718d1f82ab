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
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Post("/discovery", s.handleDiscovery)

		r.Route("/circuits", func(r chi.Router) {
			r.Get("/", s.handleListCircuits)
			r.Get("/{id}", s.handleGetCircuit)
			r.Put("/{id}/state", s.handleSetCircuitState)
		})

		r.Route("/bodies", func(r chi.Router) {
			r.Get("/", s.handleListBodies)
			r.Get("/{id}", s.handleGetBody)
			r.Put("/{id}/setpoint", s.handleSetSetpoint)
			r.Put("/{id}/heatmode", s.handleSetHeatMode)
		})

		r.Route("/pumps", func(r chi.Router) {
			r.Get("/", s.handleListPumps)
			r.Get("/{id}", s.handleGetPump)
		})

		r.Route("/heaters", func(r chi.Router) {
			r.Get("/", s.handleListHeaters)
			r.Get("/{id}", s.handleGetHeater)
		})

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", s.handleListSensors)
			r.Get("/{id}", s.handleGetSensor)
		})

		r.Post("/commands", s.handleCommand)
		r.Get("/deadletters", s.handleDeadLetters)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status together with the hub
// request-path health snapshot.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.controller.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"hub":     health,
	})
}

// handleSystem returns transport statistics and entity counts.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	counts := map[string]int{}
	for kind, ids := range s.controller.EntityIDs() {
		counts[kind] = len(ids)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hub_stats": s.controller.HubStats(),
		"health":    s.controller.Health(),
		"entities":  counts,
	})
}

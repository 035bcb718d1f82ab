package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/pool-logic-core/internal/discovery"
	"github.com/nerrad567/pool-logic-core/internal/engine"
)

// setStateRequest is the body for PUT /circuits/{id}/state.
type setStateRequest struct {
	On bool `json:"on"`
}

// setpointRequest is the body for PUT /bodies/{id}/setpoint.
type setpointRequest struct {
	Temperature float64 `json:"temperature"`
}

// heatModeRequest is the body for PUT /bodies/{id}/heatmode.
type heatModeRequest struct {
	Mode int `json:"mode"`
}

// commandRequest is the body for POST /commands: a raw parameter write
// against any known object. The typed endpoints cover the common cases;
// this is the escape hatch for everything else the hub accepts.
type commandRequest struct {
	Object string            `json:"object"`
	Params map[string]string `json:"params"`
}

// decodeBody parses a JSON request body into dst, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeCommandError maps engine command failures to HTTP status codes.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownObject):
		writeNotFound(w, err.Error())
	case errors.Is(err, engine.ErrCommandRejected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeRejected, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
	}
}

func (s *Server) handleSetCircuitState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setStateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.controller.SetCircuitState(r.Context(), id, req.On); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "on": req.On})
}

// Setpoint bounds accepted by the API. The hub enforces its own limits;
// these just reject obvious garbage before it goes on the wire.
const (
	minSetpoint = 32.0
	maxSetpoint = 110.0
)

func (s *Server) handleSetSetpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req setpointRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Temperature < minSetpoint || req.Temperature > maxSetpoint {
		writeBadRequest(w, "temperature out of range")
		return
	}

	if err := s.controller.SetSetpoint(r.Context(), id, req.Temperature); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "temperature": req.Temperature})
}

func (s *Server) handleSetHeatMode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req heatModeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Mode < 0 {
		writeBadRequest(w, "mode must be non-negative")
		return
	}

	if err := s.controller.SetHeatMode(r.Context(), id, req.Mode); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "mode": req.Mode})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Object == "" || len(req.Params) == 0 {
		writeBadRequest(w, "object and params are required")
		return
	}

	params := make(map[string]any, len(req.Params))
	for k, v := range req.Params {
		params[k] = v
	}

	if err := s.controller.SendCommand(r.Context(), req.Object, params); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"object": req.Object})
}

// handleDiscovery runs a full discovery cycle. Blocks until the cycle
// completes; one cycle at a time, concurrent requests get a conflict.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Discover(r.Context()); err != nil {
		if errors.Is(err, discovery.ErrInProgress) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
		return
	}

	counts := map[string]int{}
	for kind, ids := range s.controller.EntityIDs() {
		counts[kind] = len(ids)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": counts})
}

// handleDeadLetters lists commands abandoned by the outbound pipeline.
func (s *Server) handleDeadLetters(w http.ResponseWriter, _ *http.Request) {
	letters := s.controller.DeadLetters()
	writeJSON(w, http.StatusOK, map[string]any{
		"dead_letters": letters,
		"count":        len(letters),
	})
}

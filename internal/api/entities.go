package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/pool-logic-core/internal/engine"
	"github.com/nerrad567/pool-logic-core/internal/model"
	"github.com/nerrad567/pool-logic-core/internal/pump"
)

// Response documents for entity reads. These mirror the MQTT state
// payloads so consumers see one shape regardless of transport.

type circuitResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Subtype  string `json:"subtype,omitempty"`
	Status   string `json:"status"`
	Featured bool   `json:"featured"`
}

type bodyResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Subtype        string  `json:"subtype,omitempty"`
	Temperature    float64 `json:"temperature"`
	LowSetpoint    float64 `json:"low_setpoint"`
	HighSetpoint   float64 `json:"high_setpoint"`
	HeatMode       int     `json:"heat_mode"`
	HeaterID       string  `json:"heater_id,omitempty"`
	Status         string  `json:"status"`
	CallingForHeat bool    `json:"calling_for_heat"`
}

type pumpResponse struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subtype string  `json:"subtype"`
	RPM     float64 `json:"rpm"`
	GPM     float64 `json:"gpm"`
	Watts   float64 `json:"watts"`
	MinRPM  int     `json:"min_rpm,omitempty"`
	MaxRPM  int     `json:"max_rpm,omitempty"`
	MinFlow int     `json:"min_flow,omitempty"`
	MaxFlow int     `json:"max_flow,omitempty"`

	// Derived contains the computed active-speed metrics.
	Derived pumpDerivedResponse `json:"derived"`
}

type pumpDerivedResponse struct {
	Active bool    `json:"active"`
	Speed  float64 `json:"speed"`
	GPM    float64 `json:"gpm"`
	Watts  float64 `json:"watts"`
}

type heaterResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	CoolingEnabled bool     `json:"cooling_enabled"`
	BodyIDs        []string `json:"body_ids,omitempty"`
}

type sensorResponse struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Type  string  `json:"type,omitempty"`
	Probe float64 `json:"probe"`
}

func circuitResponseFrom(c model.Circuit) circuitResponse {
	return circuitResponse{
		ID:       c.ID,
		Name:     c.Name,
		Subtype:  string(c.Subtype),
		Status:   string(c.Status),
		Featured: c.Featured,
	}
}

func bodyResponseFrom(b model.Body) bodyResponse {
	return bodyResponse{
		ID:             b.ID,
		Name:           b.Name,
		Subtype:        string(b.Subtype),
		Temperature:    b.Temperature,
		LowSetpoint:    b.LowSetpoint,
		HighSetpoint:   b.HighSetpoint,
		HeatMode:       b.HeatMode,
		HeaterID:       b.HeaterID,
		Status:         string(b.Status),
		CallingForHeat: b.CallingForHeat(),
	}
}

func pumpResponseFrom(p model.Pump, m pump.Metrics) pumpResponse {
	return pumpResponse{
		ID:      p.ID,
		Name:    p.Name,
		Subtype: p.Subtype,
		RPM:     p.RPM,
		GPM:     p.GPM,
		Watts:   p.Watts,
		MinRPM:  p.MinRPM,
		MaxRPM:  p.MaxRPM,
		MinFlow: p.MinFlow,
		MaxFlow: p.MaxFlow,
		Derived: pumpDerivedResponse{
			Active: m.Speed != pump.InactiveSpeedSentinel,
			Speed:  m.Speed,
			GPM:    m.GPM,
			Watts:  m.Watts,
		},
	}
}

func heaterResponseFrom(h model.Heater) heaterResponse {
	return heaterResponse{
		ID:             h.ID,
		Name:           h.Name,
		CoolingEnabled: h.CoolingEnabled,
		BodyIDs:        h.BodyIDs,
	}
}

func sensorResponseFrom(sn model.Sensor) sensorResponse {
	return sensorResponse{
		ID:    sn.ID,
		Name:  sn.Name,
		Type:  string(sn.Type),
		Probe: sn.Probe,
	}
}

// sortedIDs returns the discovered ids of one kind in stable order.
func (s *Server) sortedIDs(kind string) []string {
	ids := s.controller.EntityIDs()[kind]
	slices.Sort(ids)
	return ids
}

func (s *Server) handleListCircuits(w http.ResponseWriter, _ *http.Request) {
	out := []circuitResponse{}
	for _, id := range s.sortedIDs(engine.KindCircuit) {
		if c, ok := s.controller.CircuitState(id); ok {
			out = append(out, circuitResponseFrom(c))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"circuits": out, "count": len(out)})
}

func (s *Server) handleGetCircuit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.controller.CircuitState(id)
	if !ok {
		writeNotFound(w, "circuit not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, circuitResponseFrom(c))
}

func (s *Server) handleListBodies(w http.ResponseWriter, _ *http.Request) {
	out := []bodyResponse{}
	for _, id := range s.sortedIDs(engine.KindBody) {
		if b, ok := s.controller.BodyState(id); ok {
			out = append(out, bodyResponseFrom(b))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bodies": out, "count": len(out)})
}

func (s *Server) handleGetBody(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, ok := s.controller.BodyState(id)
	if !ok {
		writeNotFound(w, "body not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, bodyResponseFrom(b))
}

func (s *Server) handleListPumps(w http.ResponseWriter, _ *http.Request) {
	out := []pumpResponse{}
	for _, id := range s.sortedIDs(engine.KindPump) {
		if p, m, ok := s.controller.PumpTelemetry(id); ok {
			out = append(out, pumpResponseFrom(p, m))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pumps": out, "count": len(out)})
}

func (s *Server) handleGetPump(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, m, ok := s.controller.PumpTelemetry(id)
	if !ok {
		writeNotFound(w, "pump not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, pumpResponseFrom(p, m))
}

func (s *Server) handleListHeaters(w http.ResponseWriter, _ *http.Request) {
	out := []heaterResponse{}
	for _, id := range s.sortedIDs(engine.KindHeater) {
		if h, ok := s.controller.HeaterState(id); ok {
			out = append(out, heaterResponseFrom(h))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"heaters": out, "count": len(out)})
}

func (s *Server) handleGetHeater(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, ok := s.controller.HeaterState(id)
	if !ok {
		writeNotFound(w, "heater not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, heaterResponseFrom(h))
}

func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	out := []sensorResponse{}
	for _, id := range s.sortedIDs(engine.KindSensor) {
		if sn, ok := s.controller.SensorState(id); ok {
			out = append(out, sensorResponseFrom(sn))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": out, "count": len(out)})
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sn, ok := s.controller.SensorState(id)
	if !ok {
		writeNotFound(w, "sensor not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, sensorResponseFrom(sn))
}

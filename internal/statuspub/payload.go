package statuspub

import (
	"github.com/nerrad567/pool-logic-core/internal/model"
	"github.com/nerrad567/pool-logic-core/internal/pump"
)

// circuitPayload is the retained state document for a circuit.
type circuitPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Subtype  string `json:"subtype,omitempty"`
	Status   string `json:"status"`
	Featured bool   `json:"featured"`
}

// bodyPayload is the retained state document for a body of water.
type bodyPayload struct {
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

// pumpPayload is the retained state document for a pump, combining the
// hub's live readings with configuration bounds.
type pumpPayload struct {
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
}

// heaterPayload is the retained state document for a heater.
type heaterPayload struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	CoolingEnabled bool     `json:"cooling_enabled"`
	BodyIDs        []string `json:"body_ids,omitempty"`
}

// sensorPayload is the retained state document for a temperature probe.
type sensorPayload struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Type  string  `json:"type,omitempty"`
	Probe float64 `json:"probe"`
}

// telemetryPayload is the unretained derived-metrics sample for a pump.
// Active is false when no associated circuit is running; Speed then
// carries the inactive sentinel.
type telemetryPayload struct {
	PumpID     string  `json:"pump_id"`
	Active     bool    `json:"active"`
	Speed      float64 `json:"speed"`
	SpeedUnits string  `json:"speed_units"`
	GPM        float64 `json:"gpm"`
	Watts      float64 `json:"watts"`
}

func circuitDoc(c *model.Circuit) circuitPayload {
	return circuitPayload{
		ID:       c.ID,
		Name:     c.Name,
		Subtype:  string(c.Subtype),
		Status:   string(c.Status),
		Featured: c.Featured,
	}
}

func bodyDoc(b *model.Body) bodyPayload {
	return bodyPayload{
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

func pumpDoc(p *model.Pump) pumpPayload {
	return pumpPayload{
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
	}
}

func heaterDoc(h *model.Heater) heaterPayload {
	return heaterPayload{
		ID:             h.ID,
		Name:           h.Name,
		CoolingEnabled: h.CoolingEnabled,
		BodyIDs:        h.BodyIDs,
	}
}

func sensorDoc(s *model.Sensor) sensorPayload {
	return sensorPayload{
		ID:    s.ID,
		Name:  s.Name,
		Type:  string(s.Type),
		Probe: s.Probe,
	}
}

// speedUnitsFor picks the units tag for a pump's telemetry stream from
// its subtype: flow-controlled pumps command in GPM, everything else in RPM.
func speedUnitsFor(p *model.Pump) string {
	if p.Subtype == model.PumpSubtypeVF {
		return string(model.SpeedUnitsGPM)
	}
	return string(model.SpeedUnitsRPM)
}

func telemetryDoc(p *model.Pump, m pump.Metrics) telemetryPayload {
	return telemetryPayload{
		PumpID:     p.ID,
		Active:     m.Speed != pump.InactiveSpeedSentinel,
		Speed:      m.Speed,
		SpeedUnits: speedUnitsFor(p),
		GPM:        m.GPM,
		Watts:      m.Watts,
	}
}

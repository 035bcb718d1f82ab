package engine

import (
	"strings"

	"github.com/nerrad567/pool-logic-core/internal/model"
)

// Entity kinds reported to the update notifier.
const (
	KindCircuit     = "circuit"
	KindBody        = "body"
	KindPump        = "pump"
	KindPumpCircuit = "pump_circuit"
	KindHeater      = "heater"
	KindSensor      = "sensor"
)

// Subscription field sets per entity kind: the parameters the hub is
// asked to push ongoing changes for.
var (
	circuitKeys     = []string{model.ParamStatus, model.ParamName, model.ParamFeatured}
	bodyKeys        = []string{model.ParamLastTemp, model.ParamLowTemp, model.ParamHighTemp, model.ParamHeatMode, model.ParamHeater, model.ParamStatus}
	pumpKeys        = []string{model.ParamRPM, model.ParamGPM, model.ParamWatts}
	pumpCircuitKeys = []string{model.ParamSpeed, model.ParamSelect}
	heaterKeys      = []string{model.ParamCooling, model.ParamBody}
	sensorKeys      = []string{model.ParamProbe}
)

// The apply functions fold a live update's parameters into a typed
// entity. Every field is apply-if-present: an update naming two fields
// must not disturb any other. Each returns whether anything changed.

func applyCircuit(c *model.Circuit, params map[string]any) bool {
	changed := false
	if _, ok := params[model.ParamStatus]; ok {
		if s := model.ParseStatus(model.ParamString(params, model.ParamStatus)); s != c.Status {
			c.Status = s
			changed = true
		}
	}
	if _, ok := params[model.ParamName]; ok {
		if name := model.ParamString(params, model.ParamName); name != c.Name {
			c.Name = name
			changed = true
		}
	}
	if _, ok := params[model.ParamFeatured]; ok {
		if f := model.ParamString(params, model.ParamFeatured) == string(model.StatusOn); f != c.Featured {
			c.Featured = f
			changed = true
		}
	}
	return changed
}

func applyBody(b *model.Body, params map[string]any) bool {
	changed := false
	setFloat := func(key string, dst *float64) {
		if _, ok := params[key]; ok {
			if v := model.ParamFloat(params, key); v != *dst {
				*dst = v
				changed = true
			}
		}
	}
	setFloat(model.ParamLastTemp, &b.Temperature)
	setFloat(model.ParamLowTemp, &b.LowSetpoint)
	setFloat(model.ParamHighTemp, &b.HighSetpoint)
	if _, ok := params[model.ParamHeatMode]; ok {
		if v := model.ParamInt(params, model.ParamHeatMode); v != b.HeatMode {
			b.HeatMode = v
			changed = true
		}
	}
	if _, ok := params[model.ParamHeater]; ok {
		if v := model.ParamString(params, model.ParamHeater); v != b.HeaterID {
			b.HeaterID = v
			changed = true
		}
	}
	if _, ok := params[model.ParamStatus]; ok {
		if s := model.ParseStatus(model.ParamString(params, model.ParamStatus)); s != b.Status {
			b.Status = s
			changed = true
		}
	}
	return changed
}

// applyPump handles updates addressed to the pump object itself: live
// drive readings.
func applyPump(p *model.Pump, params map[string]any) bool {
	changed := false
	setFloat := func(key string, dst *float64) {
		if _, ok := params[key]; ok {
			if v := model.ParamFloat(params, key); v != *dst {
				*dst = v
				changed = true
			}
		}
	}
	setFloat(model.ParamRPM, &p.RPM)
	setFloat(model.ParamGPM, &p.GPM)
	setFloat(model.ParamWatts, &p.Watts)
	return changed
}

// applyPumpCircuit handles the second pump update shape: updates
// addressed to a pump's circuit association object.
func applyPumpCircuit(pc *model.PumpCircuit, params map[string]any) bool {
	changed := false
	if _, ok := params[model.ParamSpeed]; ok {
		if v := model.ParamFloat(params, model.ParamSpeed); v != pc.Speed {
			pc.Speed = v
			changed = true
		}
	}
	if _, ok := params[model.ParamSelect]; ok {
		units := model.SpeedUnits(model.ParamString(params, model.ParamSelect))
		if units != model.SpeedUnitsGPM {
			units = model.SpeedUnitsRPM
		}
		if units != pc.Units {
			pc.Units = units
			changed = true
		}
	}
	if _, ok := params[model.ParamCircuit]; ok {
		if v := model.ParamString(params, model.ParamCircuit); v != pc.CircuitID {
			pc.CircuitID = v
			changed = true
		}
	}
	return changed
}

func applyHeater(h *model.Heater, params map[string]any) bool {
	changed := false
	if _, ok := params[model.ParamCooling]; ok {
		if v := model.ParamString(params, model.ParamCooling) == string(model.StatusOn); v != h.CoolingEnabled {
			h.CoolingEnabled = v
			changed = true
		}
	}
	if _, ok := params[model.ParamBody]; ok {
		ids := strings.Fields(model.ParamString(params, model.ParamBody))
		if !equalStrings(ids, h.BodyIDs) {
			h.BodyIDs = ids
			changed = true
		}
	}
	return changed
}

func applySensor(s *model.Sensor, params map[string]any) bool {
	if _, ok := params[model.ParamProbe]; ok {
		if v := model.ParamFloat(params, model.ParamProbe); v != s.Probe {
			s.Probe = v
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

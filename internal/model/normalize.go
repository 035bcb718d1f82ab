package model

import (
	"strconv"
	"strings"
)

// Wire parameter keys used by the hardware definition and live updates.
const (
	ParamObjectType = "OBJTYP"
	ParamSubtype    = "SUBTYP"
	ParamName       = "SNAME"
	ParamStatus     = "STATUS"
	ParamFeatured   = "FEATR"
	ParamObjectList = "OBJLIST"
	ParamLastTemp   = "LSTTMP"
	ParamLowTemp    = "LOTMP"
	ParamHighTemp   = "HITMP"
	ParamHeatMode   = "HTMODE"
	ParamHeater     = "HEATER"
	ParamCircuit    = "CIRCUIT"
	ParamSpeed      = "SPEED"
	ParamSelect     = "SELECT"
	ParamMinRPM     = "MIN"
	ParamMaxRPM     = "MAX"
	ParamMinFlow    = "MINF"
	ParamMaxFlow    = "MAXF"
	ParamRPM        = "RPM"
	ParamGPM        = "GPM"
	ParamWatts      = "PWR"
	ParamProbe      = "PROBE"
	ParamCooling    = "COOL"
	ParamBody       = "BODY"
	ParamParent     = "PARENT"
)

// Options controls normalization behaviour.
type Options struct {
	// IncludeAllCircuits surfaces every non-legacy circuit as a Feature,
	// overriding the per-circuit feature flag.
	IncludeAllCircuits bool

	// SupportVariableSpeedPumps gates pump extraction entirely.
	SupportVariableSpeedPumps bool
}

// Normalize converts a merged raw hardware definition into the typed
// entity graph.
//
// The walk is tolerant by construction: objects with missing parameters
// get zero values, unknown object types are skipped, and nothing in the
// raw shape can panic the conversion. A definition with no panels is the
// only hard error.
func Normalize(raw []any, opts Options) (*System, error) {
	sys := &System{}
	for _, entry := range raw {
		name, params := objParts(entry)
		if ParamString(params, ParamObjectType) != string(ObjectTypePanel) {
			continue
		}
		sys.Panels = append(sys.Panels, normalizePanel(name, params, opts))
	}
	if len(sys.Panels) == 0 {
		return nil, ErrEmptyDefinition
	}
	return sys, nil
}

func normalizePanel(id string, params map[string]any, opts Options) *Panel {
	p := &Panel{ID: id, Name: ParamString(params, ParamName)}

	for _, child := range paramList(params, ParamObjectList) {
		cid, cparams := objParts(child)
		switch ObjectType(ParamString(cparams, ParamObjectType)) {
		case ObjectTypeModule:
			p.Modules = append(p.Modules, normalizeModule(p, cid, cparams, opts))
		case ObjectTypeCircuit:
			c := normalizeCircuit(cid, cparams)
			p.Circuits = append(p.Circuits, c)
			if circuitVisible(c, opts) {
				p.Features = append(p.Features, c)
			}
		case ObjectTypePump:
			if !opts.SupportVariableSpeedPumps {
				continue
			}
			if pump := normalizePump(cid, cparams); pump != nil {
				p.Pumps = append(p.Pumps, pump)
			}
		case ObjectTypeSensor:
			p.Sensors = append(p.Sensors, normalizeSensor(cid, cparams))
		}
	}

	// Body-to-circuit correlation runs after the full walk so a body can
	// match a circuit declared later in the definition.
	for _, m := range p.Modules {
		for _, b := range m.Bodies {
			b.Circuit = matchBodyCircuit(p.Circuits, b)
		}
	}
	return p
}

func normalizeModule(p *Panel, id string, params map[string]any, opts Options) *Module {
	m := &Module{ID: id, Name: ParamString(params, ParamName)}
	for _, child := range paramList(params, ParamObjectList) {
		cid, cparams := objParts(child)
		switch ObjectType(ParamString(cparams, ParamObjectType)) {
		case ObjectTypeCircuit:
			c := normalizeCircuit(cid, cparams)
			p.Circuits = append(p.Circuits, c)
			if circuitVisible(c, opts) {
				m.Features = append(m.Features, c)
			}
		case ObjectTypeBody:
			m.Bodies = append(m.Bodies, normalizeBody(cid, cparams))
		case ObjectTypeHeater:
			m.Heaters = append(m.Heaters, normalizeHeater(cid, cparams))
		}
	}
	return m
}

func normalizeCircuit(id string, params map[string]any) *Circuit {
	return &Circuit{
		ID:       id,
		Name:     ParamString(params, ParamName),
		Type:     ObjectTypeCircuit,
		Subtype:  CircuitSubtype(ParamString(params, ParamSubtype)),
		Status:   ParseStatus(ParamString(params, ParamStatus)),
		Featured: ParamString(params, ParamFeatured) == string(StatusOn),
	}
}

// circuitVisible applies the Feature surfacing rules: legacy circuits are
// never visible, lighting-colour circuits always are, everything else
// follows the feature flag unless the include-all override is set.
func circuitVisible(c *Circuit, opts Options) bool {
	if c.Subtype == SubtypeLegacy {
		return false
	}
	if c.Subtype == SubtypeIntelliBrite {
		return true
	}
	return opts.IncludeAllCircuits || c.Featured
}

func normalizeBody(id string, params map[string]any) *Body {
	return &Body{
		ID:           id,
		Name:         ParamString(params, ParamName),
		Subtype:      CircuitSubtype(ParamString(params, ParamSubtype)),
		Temperature:  ParamFloat(params, ParamLastTemp),
		LowSetpoint:  ParamFloat(params, ParamLowTemp),
		HighSetpoint: ParamFloat(params, ParamHighTemp),
		HeatMode:     ParamInt(params, ParamHeatMode),
		HeaterID:     ParamString(params, ParamHeater),
		Status:       ParseStatus(ParamString(params, ParamStatus)),
	}
}

func normalizePump(id string, params map[string]any) *Pump {
	subtype := ParamString(params, ParamSubtype)
	if _, ok := VariableSpeedSubtypes[subtype]; !ok {
		return nil
	}
	p := &Pump{
		ID:      id,
		Name:    ParamString(params, ParamName),
		Subtype: subtype,
		MinRPM:  ParamInt(params, ParamMinRPM),
		MaxRPM:  ParamInt(params, ParamMaxRPM),
		MinFlow: ParamInt(params, ParamMinFlow),
		MaxFlow: ParamInt(params, ParamMaxFlow),
		RPM:     ParamFloat(params, ParamRPM),
		GPM:     ParamFloat(params, ParamGPM),
		Watts:   ParamFloat(params, ParamWatts),
	}
	for _, child := range paramList(params, ParamObjectList) {
		cid, cparams := objParts(child)
		circuitID := ParamString(cparams, ParamCircuit)
		if circuitID == "" {
			continue
		}
		units := SpeedUnits(ParamString(cparams, ParamSelect))
		if units != SpeedUnitsGPM {
			units = SpeedUnitsRPM
		}
		p.Circuits = append(p.Circuits, &PumpCircuit{
			ID:        cid,
			CircuitID: circuitID,
			Speed:     p.ClampCircuitSpeed(ParamFloat(cparams, ParamSpeed), units),
			Units:     units,
		})
	}
	return p
}

func normalizeHeater(id string, params map[string]any) *Heater {
	return &Heater{
		ID:             id,
		Name:           ParamString(params, ParamName),
		CoolingEnabled: ParamString(params, ParamCooling) == string(StatusOn),
		BodyIDs:        strings.Fields(ParamString(params, ParamBody)),
	}
}

func normalizeSensor(id string, params map[string]any) *Sensor {
	return &Sensor{
		ID:    id,
		Name:  ParamString(params, ParamName),
		Type:  SensorType(ParamString(params, ParamSubtype)),
		Probe: ParamFloat(params, ParamProbe),
	}
}

// matchBodyCircuit resolves a body's underlying circuit. The hub provides
// no id linkage, so the match is by name and subtype among the panel's
// circuits.
func matchBodyCircuit(circuits []*Circuit, b *Body) *Circuit {
	for _, c := range circuits {
		if c.Name == b.Name && c.Subtype == b.Subtype {
			return c
		}
	}
	return nil
}

// objParts splits a raw object entry into its id and parameter map. Any
// shape mismatch yields zero values.
func objParts(entry any) (string, map[string]any) {
	m, ok := entry.(map[string]any)
	if !ok {
		return "", nil
	}
	name, _ := m["objnam"].(string)
	params, _ := m["params"].(map[string]any)
	return name, params
}

// ParamString reads a wire parameter as a string. Numeric values are
// formatted; anything else reads as empty.
func ParamString(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// ParamFloat reads a wire parameter as a float. The hub reports numbers
// both as JSON numbers and as quoted strings; both parse, anything else
// reads as zero.
func ParamFloat(params map[string]any, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ParamInt reads a wire parameter as an integer, truncating fractions.
func ParamInt(params map[string]any, key string) int {
	return int(ParamFloat(params, key))
}

func paramList(params map[string]any, key string) []any {
	list, _ := params[key].([]any)
	return list
}

package model

import "strings"

// Wire object types reported by the hub in the OBJTYP parameter.
type ObjectType string

// ObjectType constants.
const (
	ObjectTypePanel   ObjectType = "PANEL"
	ObjectTypeModule  ObjectType = "MODULE"
	ObjectTypeCircuit ObjectType = "CIRCUIT"
	ObjectTypeBody    ObjectType = "BODY"
	ObjectTypePump    ObjectType = "PUMP"
	ObjectTypeHeater  ObjectType = "HEATER"
	ObjectTypeSensor  ObjectType = "SENSE"
)

// Status is the hub's on/off enumeration for switchable objects.
type Status string

// Status constants.
const (
	StatusOn      Status = "ON"
	StatusOff     Status = "OFF"
	StatusUnknown Status = ""
)

// ParseStatus normalises a raw status value to the fixed enumeration.
// Anything unrecognised maps to StatusUnknown rather than propagating
// garbage.
func ParseStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ON":
		return StatusOn
	case "OFF":
		return StatusOff
	default:
		return StatusUnknown
	}
}

// CircuitSubtype is the hub's circuit subtype marker.
type CircuitSubtype string

// Circuit subtypes with protocol-level meaning.
const (
	// SubtypeLegacy circuits are internal relics and are never surfaced
	// as visible Features, regardless of any flag combination.
	SubtypeLegacy CircuitSubtype = "LEGACY"

	// SubtypeIntelliBrite is the lighting-colour subtype that is always
	// visible: the hub does not reliably set its feature flag, so it is
	// exempted from the feature-flag rule.
	SubtypeIntelliBrite CircuitSubtype = "INTELLI"

	// SubtypePool and SubtypeSpa mark body circuits, used for the
	// name+subtype correlation between a Body and its Circuit.
	SubtypePool CircuitSubtype = "POOL"
	SubtypeSpa  CircuitSubtype = "SPA"
)

// Pump subtypes in the variable-speed allow-set. Anything else (single-
// or dual-speed pumps) is excluded from the entity graph entirely.
const (
	PumpSubtypeVS  = "SPEED"
	PumpSubtypeVF  = "FLOW"
	PumpSubtypeVSF = "VSF"
)

// VariableSpeedSubtypes is the fixed allow-set of pump subtypes kept by
// the normalizer.
var VariableSpeedSubtypes = map[string]struct{}{
	PumpSubtypeVS:  {},
	PumpSubtypeVF:  {},
	PumpSubtypeVSF: {},
}

// SpeedUnits is the units a pump circuit's configured speed is expressed in.
type SpeedUnits string

// SpeedUnits constants.
const (
	SpeedUnitsRPM SpeedUnits = "RPM"
	SpeedUnitsGPM SpeedUnits = "GPM"
)

// SensorType is the hub's temperature-sensor classification.
type SensorType string

// Sensor types.
const (
	SensorTypeAir   SensorType = "AIR"
	SensorTypePool  SensorType = "POOL"
	SensorTypeSolar SensorType = "SOLAR"
)

// NoHeaterID is the hub's placeholder for "no heater assigned".
const NoHeaterID = "00000"

// SyntheticCircuitPrefix marks internal heater circuits that carry no
// direct activity flag; their activity is inferred from body heat demand.
const SyntheticCircuitPrefix = "X"

// System is the root of the typed entity graph: everything discovered on
// the hub in one discovery cycle. The graph is rebuilt wholesale at the
// end of each cycle and mutated in place by the update dispatcher between
// cycles.
type System struct {
	Panels []*Panel
}

// Panel is a physical control panel: the root object the hub reports.
type Panel struct {
	ID   string
	Name string

	Modules []*Module

	// Features are the panel-level circuits surfaced to consumers.
	Features []*Circuit

	// Circuits is every circuit discovered under this panel, visible or
	// not, shared by pointer with the Features lists. Correlation lookups
	// (pump circuits, body circuits) go through here.
	Circuits []*Circuit

	Pumps   []*Pump
	Sensors []*Sensor
}

// Module is an expansion board within a panel.
type Module struct {
	ID   string
	Name string

	// Features are this module's visible circuits.
	Features []*Circuit

	Bodies  []*Body
	Heaters []*Heater
}

// Circuit is the hub's base switchable unit.
type Circuit struct {
	ID      string
	Name    string
	Type    ObjectType
	Subtype CircuitSubtype
	Status  Status

	// Featured records the hub's feature flag, before visibility rules.
	Featured bool
}

// IsOn reports whether the circuit is currently on.
func (c *Circuit) IsOn() bool {
	return c != nil && c.Status == StatusOn
}

// Body is a named water volume with temperature and heater association.
type Body struct {
	ID      string
	Name    string
	Subtype CircuitSubtype

	// Temperature is the last reported water temperature.
	Temperature float64

	// LowSetpoint is the heating setpoint; HighSetpoint the cooling one.
	LowSetpoint  float64
	HighSetpoint float64

	// HeatMode is the hub's numeric heat mode selector.
	HeatMode int

	// HeaterID is a weak reference by id; the heater may not exist.
	HeaterID string

	Status Status

	// Circuit is the body's underlying circuit, resolved by matching
	// name and subtype among sibling circuits. The hub provides no
	// id-based linkage. May be nil when no sibling matches.
	Circuit *Circuit
}

// HasHeater reports whether the body has a real heater assignment.
func (b *Body) HasHeater() bool {
	return b != nil && b.HeaterID != "" && b.HeaterID != NoHeaterID
}

// CallingForHeat reports whether the body is inferred to be actively
// heating: it has a heater assigned and its temperature is below the
// heating setpoint.
//
// The hub exposes no explicit flag for heater demand, so this is a
// best-effort approximation used to decide whether a synthetic internal
// heater circuit counts as active.
func (b *Body) CallingForHeat() bool {
	return b.HasHeater() && b.Temperature < b.LowSetpoint
}

// Pump is a variable-speed pump. Fixed-speed pumps never enter the graph.
type Pump struct {
	ID   string
	Name string

	// Subtype is the hub's pump subtype (SPEED, FLOW, VSF).
	Subtype string

	MinRPM  int
	MaxRPM  int
	MinFlow int
	MaxFlow int

	// Current readings reported by the hub.
	RPM   float64
	GPM   float64
	Watts float64

	Circuits []*PumpCircuit
}

// ServesCircuit reports whether the pump has a circuit association for
// the given circuit id.
func (p *Pump) ServesCircuit(circuitID string) bool {
	for _, pc := range p.Circuits {
		if pc.CircuitID == circuitID {
			return true
		}
	}
	return false
}

// HasSyntheticCircuit reports whether any of the pump's associations
// reference a synthetic internal heater circuit.
func (p *Pump) HasSyntheticCircuit() bool {
	for _, pc := range p.Circuits {
		if strings.HasPrefix(pc.CircuitID, SyntheticCircuitPrefix) {
			return true
		}
	}
	return false
}

// ClampCircuitSpeed bounds a configured circuit speed to the pump's
// declared range for the given units. Unset bounds (zero) leave that
// side open.
func (p *Pump) ClampCircuitSpeed(speed float64, units SpeedUnits) float64 {
	lo, hi := p.MinRPM, p.MaxRPM
	if units == SpeedUnitsGPM {
		lo, hi = p.MinFlow, p.MaxFlow
	}
	if lo > 0 && speed < float64(lo) {
		return float64(lo)
	}
	if hi > 0 && speed > float64(hi) {
		return float64(hi)
	}
	return speed
}

// PumpCircuit associates a pump with a circuit id and the speed the pump
// runs at while that circuit is active. The circuit reference is by id
// lookup, never ownership; the correlated circuit may live in a
// different module.
type PumpCircuit struct {
	ID        string
	CircuitID string
	Speed     float64
	Units     SpeedUnits
}

// Heater is a heat source serving one or more bodies.
type Heater struct {
	ID   string
	Name string

	// CoolingEnabled reports whether the heater can also cool.
	CoolingEnabled bool

	// BodyIDs lists the bodies this heater serves.
	BodyIDs []string
}

// Sensor is a temperature probe.
type Sensor struct {
	ID    string
	Name  string
	Type  SensorType
	Probe float64
}

// CircuitByID looks up a circuit anywhere in the system by hardware id.
func (s *System) CircuitByID(id string) *Circuit {
	for _, p := range s.Panels {
		for _, c := range p.Circuits {
			if c.ID == id {
				return c
			}
		}
	}
	return nil
}

// BodyByID looks up a body anywhere in the system by hardware id.
func (s *System) BodyByID(id string) *Body {
	for _, p := range s.Panels {
		for _, m := range p.Modules {
			for _, b := range m.Bodies {
				if b.ID == id {
					return b
				}
			}
		}
	}
	return nil
}

// Bodies returns every body in the system.
func (s *System) Bodies() []*Body {
	var out []*Body
	for _, p := range s.Panels {
		for _, m := range p.Modules {
			out = append(out, m.Bodies...)
		}
	}
	return out
}

// PumpByID looks up a pump anywhere in the system by hardware id.
func (s *System) PumpByID(id string) *Pump {
	for _, p := range s.Panels {
		for _, pm := range p.Pumps {
			if pm.ID == id {
				return pm
			}
		}
	}
	return nil
}

// PumpByCircuitEntry finds the pump owning a pump-circuit association id.
func (s *System) PumpByCircuitEntry(pumpCircuitID string) *Pump {
	for _, p := range s.Panels {
		for _, pm := range p.Pumps {
			for _, pc := range pm.Circuits {
				if pc.ID == pumpCircuitID {
					return pm
				}
			}
		}
	}
	return nil
}

// HeaterByID looks up a heater anywhere in the system by hardware id.
func (s *System) HeaterByID(id string) *Heater {
	for _, p := range s.Panels {
		for _, m := range p.Modules {
			for _, h := range m.Heaters {
				if h.ID == id {
					return h
				}
			}
		}
	}
	return nil
}

// SensorByID looks up a sensor anywhere in the system by hardware id.
func (s *System) SensorByID(id string) *Sensor {
	for _, p := range s.Panels {
		for _, sn := range p.Sensors {
			if sn.ID == id {
				return sn
			}
		}
	}
	return nil
}

// IsCircuitActive reports whether an ordinary circuit is currently on.
// Unknown ids count as inactive.
func (s *System) IsCircuitActive(circuitID string) bool {
	return s.CircuitByID(circuitID).IsOn()
}

// IsPumpCircuitActive answers the activity query for one of a pump's
// circuit associations.
//
// Ordinary circuit ids resolve through a direct status lookup. Ids
// carrying the reserved synthetic prefix denote internal heater circuits
// with no activity flag; those count as active while a body served by
// this pump is calling for heat. A body is served by the pump when the
// body's own circuit appears among the pump's associations, so a spa
// heat call does not spin up the pool heater's pump. When none of the
// pump's associations correlate to a body, demand from any body counts,
// which keeps installs without body-circuit correlation heating.
func (s *System) IsPumpCircuitActive(p *Pump, pc *PumpCircuit) bool {
	if !strings.HasPrefix(pc.CircuitID, SyntheticCircuitPrefix) {
		return s.IsCircuitActive(pc.CircuitID)
	}
	correlated := false
	for _, b := range s.Bodies() {
		if b.Circuit == nil || !p.ServesCircuit(b.Circuit.ID) {
			continue
		}
		correlated = true
		if b.CallingForHeat() {
			return true
		}
	}
	if correlated {
		return false
	}
	for _, b := range s.Bodies() {
		if b.CallingForHeat() {
			return true
		}
	}
	return false
}

package pump

import "github.com/nerrad567/pool-logic-core/internal/model"

// InactiveSpeedSentinel is reported as the active speed when none of a
// pump's circuits are running. A real stopped pump still reads 0 from
// the hub; the sentinel sits below the drive's operating floor and
// distinguishes "nothing scheduled" from a genuine zero reading
// downstream without pushing negative values into time series.
const InactiveSpeedSentinel = 0.1

// HighestActiveSpeed derives the speed a pump should be running at from
// its circuit associations: the maximum configured speed across all
// currently active circuits.
//
// Activity resolution goes through the system graph, so synthetic heater
// circuits participate via the heat-demand inference scoped to the
// bodies this pump serves. Returns InactiveSpeedSentinel when no
// associated circuit is active.
func HighestActiveSpeed(sys *model.System, p *model.Pump) float64 {
	speed := InactiveSpeedSentinel
	for _, pc := range p.Circuits {
		if !sys.IsPumpCircuitActive(p, pc) {
			continue
		}
		if pc.Speed > speed {
			speed = pc.Speed
		}
	}
	return speed
}

// Metrics bundles the derived sensor values for one pump.
type Metrics struct {
	Speed float64 // highest active configured speed, or the sentinel
	GPM   float64 // estimated flow at that speed
	Watts float64 // estimated draw at that speed
}

// Derive computes the full derived-sensor set for a pump. With no active
// circuit, flow and draw are 0 and Speed carries the sentinel.
func Derive(sys *model.System, p *model.Pump) Metrics {
	speed := HighestActiveSpeed(sys, p)
	if speed == InactiveSpeedSentinel {
		return Metrics{Speed: InactiveSpeedSentinel}
	}
	class, _ := ClassForSubtype(p.Subtype)
	return Metrics{
		Speed: speed,
		GPM:   class.Flow(speed),
		Watts: class.Power(speed),
	}
}

package pump

import (
	"testing"

	"github.com/nerrad567/pool-logic-core/internal/model"
)

func speedFixture() (*model.System, *model.Pump) {
	p := &model.Pump{
		ID:      "PMP01",
		Subtype: model.PumpSubtypeVS,
		Circuits: []*model.PumpCircuit{
			{ID: "p0101", CircuitID: "C0001", Speed: 1800, Units: model.SpeedUnitsRPM},
			{ID: "p0102", CircuitID: "C0006", Speed: 3000, Units: model.SpeedUnitsRPM},
			{ID: "p0103", CircuitID: "X0051", Speed: 2400, Units: model.SpeedUnitsRPM},
		},
	}
	sys := &model.System{Panels: []*model.Panel{{
		ID: "P0001",
		Circuits: []*model.Circuit{
			{ID: "C0001", Status: model.StatusOn},
			{ID: "C0006", Status: model.StatusOff},
		},
		Pumps: []*model.Pump{p},
		Modules: []*model.Module{{
			Bodies: []*model.Body{
				{ID: "B1101", Temperature: 85, LowSetpoint: 82, HeaterID: "H0001"},
			},
		}},
	}}}
	return sys, p
}

func TestHighestActiveSpeed(t *testing.T) {
	sys, p := speedFixture()

	// Only the 1800 RPM circuit is on; the faster one is off.
	if got := HighestActiveSpeed(sys, p); got != 1800 {
		t.Errorf("HighestActiveSpeed() = %v, want 1800", got)
	}

	// Turning the faster circuit on wins the max.
	sys.CircuitByID("C0006").Status = model.StatusOn
	if got := HighestActiveSpeed(sys, p); got != 3000 {
		t.Errorf("HighestActiveSpeed() = %v, want 3000", got)
	}
}

func TestHighestActiveSpeed_InactiveSentinel(t *testing.T) {
	sys, p := speedFixture()
	sys.CircuitByID("C0001").Status = model.StatusOff

	if got := HighestActiveSpeed(sys, p); got != InactiveSpeedSentinel {
		t.Errorf("HighestActiveSpeed() = %v, want sentinel %v", got, InactiveSpeedSentinel)
	}

	// The sentinel must stay positive so published series never carry
	// negative speeds, and below the operating floor so it cannot be
	// mistaken for a real commanded speed.
	if InactiveSpeedSentinel <= 0 || InactiveSpeedSentinel >= MinRPM {
		t.Errorf("sentinel = %v, want positive and below %v", InactiveSpeedSentinel, MinRPM)
	}
}

func TestHighestActiveSpeed_HeaterDemandActivatesSyntheticCircuit(t *testing.T) {
	sys, p := speedFixture()
	sys.CircuitByID("C0001").Status = model.StatusOff

	// Drop the body below its setpoint: the synthetic heater circuit
	// becomes active and its 2400 RPM association takes effect.
	sys.BodyByID("B1101").Temperature = 78
	if got := HighestActiveSpeed(sys, p); got != 2400 {
		t.Errorf("HighestActiveSpeed() = %v, want 2400 via heat demand", got)
	}
}

func TestDerive(t *testing.T) {
	sys, p := speedFixture()

	m := Derive(sys, p)
	if m.Speed != 1800 {
		t.Fatalf("Speed = %v, want 1800", m.Speed)
	}
	if m.GPM != ClassVS.Flow(1800) || m.Watts != ClassVS.Power(1800) {
		t.Errorf("derived metrics = %+v, want curve values at 1800", m)
	}
}

func TestDerive_Inactive(t *testing.T) {
	sys, p := speedFixture()
	sys.CircuitByID("C0001").Status = model.StatusOff

	m := Derive(sys, p)
	if m.Speed != InactiveSpeedSentinel || m.GPM != 0 || m.Watts != 0 {
		t.Errorf("Derive() = %+v, want sentinel speed with zero flow and draw", m)
	}
}

package pump

import "testing"

func TestClassForSubtype(t *testing.T) {
	tests := []struct {
		subtype string
		want    Class
		wantOK  bool
	}{
		{"SPEED", ClassVS, true},
		{"FLOW", ClassVF, true},
		{"VSF", ClassVSF, true},
		{"SINGLE", ClassVS, false},
		{"", ClassVS, false},
	}
	for _, tt := range tests {
		got, ok := ClassForSubtype(tt.subtype)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ClassForSubtype(%q) = %v, %v, want %v, %v", tt.subtype, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFlow_DomainClamping(t *testing.T) {
	tests := []struct {
		name  string
		class Class
		speed float64
		want  float64
	}{
		{"VS below floor", ClassVS, 400, 0},
		{"VS at floor", ClassVS, 450, 0},
		{"VS at ceiling", ClassVS, 3450, 115},
		{"VS above ceiling clamps", ClassVS, 4000, 115},
		{"VSF midpoint", ClassVSF, 1950, 57.5},
		{"VF below floor", ClassVF, 449, 0},
		{"VF at floor holds minimum flow", ClassVF, 450, 20},
		{"VF midpoint", ClassVF, 1950, 75},
		{"VF at ceiling", ClassVF, 3450, 130},
		{"VF above ceiling clamps", ClassVF, 4000, 130},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.class.Flow(tt.speed); got != tt.want {
				t.Errorf("Flow(%v) = %v, want %v", tt.speed, got, tt.want)
			}
		})
	}
}

func TestPower_DomainClamping(t *testing.T) {
	for _, class := range []Class{ClassVS, ClassVSF} {
		if got := class.Power(300); got != 0 {
			t.Errorf("%s.Power(300) = %v, want 0 below floor", class, got)
		}
		atMax := class.Power(3450)
		if got := class.Power(5000); got != atMax {
			t.Errorf("%s.Power(5000) = %v, want clamp to %v", class, got, atMax)
		}
		if atMax != 2800 {
			t.Errorf("%s.Power(3450) = %v, want 2800", class, atMax)
		}
	}
	if got := ClassVF.Power(449); got != 0 {
		t.Errorf("VF.Power(449) = %v, want 0 below floor", got)
	}
	if got := ClassVF.Power(450); got <= 0 {
		t.Errorf("VF.Power(450) = %v, want positive draw at floor", got)
	}
	atMax := ClassVF.Power(3450)
	if got := ClassVF.Power(5000); got != atMax {
		t.Errorf("VF.Power(5000) = %v, want clamp to %v", got, atMax)
	}
}

func TestPower_BreakpointContinuity(t *testing.T) {
	// The piecewise curves must be continuous at the breakpoint.
	tests := []struct {
		class     Class
		breakRPM  float64
		wantWatts float64
	}{
		{ClassVS, 1800, 350},
		{ClassVSF, 2450, 900},
	}
	for _, tt := range tests {
		below := tt.class.Power(tt.breakRPM - 0.001)
		at := tt.class.Power(tt.breakRPM)
		if at != tt.wantWatts {
			t.Errorf("%s.Power(%v) = %v, want %v", tt.class, tt.breakRPM, at, tt.wantWatts)
		}
		if at-below > 1 {
			t.Errorf("%s curve discontinuous at breakpoint: %v vs %v", tt.class, below, at)
		}
	}
}

func TestCurves_Monotonic(t *testing.T) {
	for _, class := range []Class{ClassVS, ClassVF, ClassVSF} {
		prevFlow, prevPower := -1.0, -1.0
		for rpm := 450.0; rpm <= 3450; rpm += 25 {
			flow, power := class.Flow(rpm), class.Power(rpm)
			if flow < prevFlow {
				t.Fatalf("%s.Flow decreasing at %v RPM: %v < %v", class, rpm, flow, prevFlow)
			}
			if power < prevPower {
				t.Fatalf("%s.Power decreasing at %v RPM: %v < %v", class, rpm, power, prevPower)
			}
			prevFlow, prevPower = flow, power
		}
	}
}

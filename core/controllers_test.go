package core

import "testing"

func TestOffsetZeroStaysZero(t *testing.T) {
	if got := offset(0.05, 0.1, 0); got != 0 {
		t.Errorf("offset(.., 0) = %v, want 0", got)
	}
}

func TestOffsetStepsPastBlend(t *testing.T) {
	got := offset(0.05, 0.1, 0.2)
	want := float32(0.2 + 0.05)
	if got != want {
		t.Errorf("offset past blend = %v, want %v", got, want)
	}
}

func TestThermalCurrentLimitInterpolates(t *testing.T) {
	// Scenario 5: fet_T = derate_T + 0.5*(fault_T - derate_T).
	derateT, faultT := float32(60), float32(80)
	fetT := derateT + 0.5*(faultT-derateT)
	maxA, derateA := float32(10), float32(4)

	got := thermalCurrentLimit(fetT, derateT, faultT, maxA, derateA)
	want := maxA + 0.5*(derateA-maxA)
	if diff := got - want; diff > 1e-4 || diff < -1e-4 {
		t.Errorf("thermalCurrentLimit = %v, want %v", got, want)
	}
}

func TestThermalCurrentLimitBelowDerate(t *testing.T) {
	got := thermalCurrentLimit(20, 60, 80, 10, 4)
	if got != 10 {
		t.Errorf("below derate_T, limit = %v, want max_current_A (10)", got)
	}
}

func TestQCurrentPositionDerate(t *testing.T) {
	got := qCurrentPositionDerate(5, 11, Unset(), 10, 2)
	want := float32(5) * 0.5 // 1 - (11-10)/2
	if diff := got - want; diff > 1e-4 || diff < -1e-4 {
		t.Errorf("derated q = %v, want %v", got, want)
	}
}

func TestAdvancePositionClampWithStop(t *testing.T) {
	// Scenario 4: control_position=1.0, velocity_cmd=+2.0,
	// stop_position=1.5, position_max=10, rate=40kHz.
	c := &Controllers{controlPosition: 1.0}
	rate := float32(40000)

	v := c.advancePosition(Unset(), 2.0, Unset(), 10, 1.5, 1.0, rate)
	if v != 2.0 {
		t.Errorf("tick 1 velocity_cmd = %v, want unchanged 2.0", v)
	}
	want := float32(1.0 + 2.0/rate)
	if diff := c.controlPosition - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("tick 1 control_position = %v, want %v", c.controlPosition, want)
	}

	for i := 0; i < 10000; i++ {
		v = c.advancePosition(Unset(), 2.0, Unset(), 10, 1.5, c.controlPosition, rate)
	}
	if c.controlPosition != 1.5 {
		t.Errorf("after 10000 more ticks, control_position = %v, want 1.5 (snapped to stop)", c.controlPosition)
	}
	if v != 0 {
		t.Errorf("after snapping, velocity_cmd = %v, want 0", v)
	}
}

func TestStayWithinBoundsTarget(t *testing.T) {
	if _, active := stayWithinBoundsTarget(5, 0, 10); active {
		t.Errorf("inside bounds should not be active")
	}
	if target, active := stayWithinBoundsTarget(-1, 0, 10); !active || target != 0 {
		t.Errorf("below min: target=%v active=%v, want 0/true", target, active)
	}
	if target, active := stayWithinBoundsTarget(11, 0, 10); !active || target != 10 {
		t.Errorf("above max: target=%v active=%v, want 10/true", target, active)
	}
}

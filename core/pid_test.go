package core

import "testing"

func TestPIDProportional(t *testing.T) {
	pid := NewPID(PIDParams{Kp: 2.0})
	out := pid.Update(0, 1, 0, 0, 1000, 1, 1)
	if out != 2.0 {
		t.Errorf("proportional output = %v, want 2.0", out)
	}
}

func TestPIDIntegralClamp(t *testing.T) {
	pid := NewPID(PIDParams{Ki: 1.0, IntegralMax: 0.5})
	for i := 0; i < 1000; i++ {
		pid.Update(0, 1, 0, 0, 1000, 1, 1)
	}
	if pid.state.Integral > 0.5 {
		t.Errorf("integral = %v, want clamped to 0.5", pid.state.Integral)
	}
}

func TestPIDOutputClamp(t *testing.T) {
	pid := NewPID(PIDParams{Kp: 100, OutputMax: 1})
	out := pid.Update(0, 1, 0, 0, 1000, 1, 1)
	if out != 1 {
		t.Errorf("output = %v, want clamped to 1", out)
	}
}

func TestPIDReset(t *testing.T) {
	pid := NewPID(PIDParams{Ki: 1})
	pid.Update(0, 1, 0, 0, 1000, 1, 1)
	pid.Reset()
	if pid.state.Integral != 0 {
		t.Errorf("integral after Reset = %v, want 0", pid.state.Integral)
	}
}

func TestPIDKpScale(t *testing.T) {
	pid := NewPID(PIDParams{Kp: 1.0})
	out := pid.Update(0, 1, 0, 0, 1000, 0, 1)
	if out != 0 {
		t.Errorf("kp_scale=0 output = %v, want 0", out)
	}
}

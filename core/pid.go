package core

// PIDState is the internal state of one PID instance (spec.md §3,
// "PID internal states"), carried in Status for telemetry.
type PIDState struct {
	Integral    float32
	PrevError   float32
	DesiredRate float32 // last commanded derivative term (velocity_cmd)
}

// PID is a generic proportional-integral-derivative controller used,
// parametrized three different ways, for the d-axis current loop, the
// q-axis current loop, and the position loop (spec.md §4.4). The
// derivative term is computed from the commanded rate rather than a
// finite difference of the error, matching the position loop's
// "threshold(velocity), velocity_cmd" signature: the PID is handed the
// process variable, the setpoint, the measured rate, and the desired
// rate directly rather than re-deriving either from history.
type PID struct {
	params PIDParams
	state  PIDState
}

// NewPID constructs a PID with the given tunable parameters.
func NewPID(params PIDParams) PID {
	return PID{params: params}
}

// Reset clears the integrator and previous-error state. Call this when
// re-entering a mode that drives this PID, so stale integral windup
// from a previous activation doesn't leak into the new one.
func (p *PID) Reset() {
	p.state = PIDState{}
}

// State returns a copy of the PID's current internal state, for telemetry.
func (p *PID) State() PIDState {
	return p.state
}

// Update runs one control-rate step. measured and setpoint are in the
// process variable's units (current or position); measuredRate and
// desiredRate are in the derivative's units (current isn't rate-fed in
// this system, so current loops pass 0 for both — see controllers.go).
// kpScale/kdScale let the position loop rescale gains per-command
// (spec.md §4.4's kp_scale/kd_scale); pass 1 for an unscaled PID.
func (p *PID) Update(measured, setpoint, measuredRate, desiredRate, rate, kpScale, kdScale float32) float32 {
	err := setpoint - measured

	p.state.Integral += err / rate
	if p.params.IntegralMax > 0 {
		if p.state.Integral > p.params.IntegralMax {
			p.state.Integral = p.params.IntegralMax
		} else if p.state.Integral < -p.params.IntegralMax {
			p.state.Integral = -p.params.IntegralMax
		}
	}

	rateError := desiredRate - measuredRate

	out := kpScale*p.params.Kp*err + p.params.Ki*p.state.Integral + kdScale*p.params.Kd*rateError

	p.state.PrevError = err
	p.state.DesiredRate = desiredRate

	if p.params.OutputMax > 0 {
		if out > p.params.OutputMax {
			out = p.params.OutputMax
		} else if out < -p.params.OutputMax {
			out = -p.params.OutputMax
		}
	}

	return out
}

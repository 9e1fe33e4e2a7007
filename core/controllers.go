package core

import "math"

// feedforwardScale multiplies the resistive/back-EMF feedforward terms
// in the current controller. The source exposes this as a fixed
// constant rather than a tunable; kept that way here.
const feedforwardScale = 1.0

// offset implements the signed dead-zone compensation of spec.md §4.4:
// zero stays zero, a command at or past the blend width b steps out by
// m, and values inside the blend width ramp linearly from 0 to b+m.
func offset(m, b, x float32) float32 {
	if x == 0 {
		return 0
	}
	sign := float32(1)
	ax := x
	if x < 0 {
		sign = -1
		ax = -x
	}
	if b <= 0 {
		return x + sign*m
	}
	if ax >= b {
		return x + sign*m
	}
	return x * (b + m) / b
}

// voltageToDuty converts a phase voltage command to a PWM duty fraction
// centered on 0.5, per spec.md §4.4's open-loop voltage control law.
func voltageToDuty(v, filtBusV, pwmMin, pwmMinBlend float32) float32 {
	if filtBusV == 0 {
		return 0.5
	}
	return 0.5 + offset(pwmMin, pwmMinBlend, v/filtBusV)
}

// clampVoltage enforces spec.md §4.4's final voltage clamp: ±(0.5 -
// kMinPwm) * filt_bus_V, preserving current-sampling headroom.
func clampVoltage(v, filtBusV, minPwm float32) float32 {
	limit := (0.5 - minPwm) * filtBusV
	if limit < 0 {
		limit = 0
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// clampDuty enforces the final PWM clamp of spec.md §4.4: every duty
// lies in [kMinPwm, kMaxPwm].
func clampDuty(d, minPwm, maxPwm float32) float32 {
	if d < minPwm {
		return minPwm
	}
	if d > maxPwm {
		return maxPwm
	}
	return d
}

// clampAbs clamps x to ±limit (limit's sign is ignored).
func clampAbs(x, limit float32) float32 {
	if limit < 0 {
		limit = -limit
	}
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}

// clampOptional clamps x to [lo, hi], treating either bound as absent
// when it is Unset().
func clampOptional(x, lo, hi float32) float32 {
	if !IsUnset(lo) && x < lo {
		x = lo
	}
	if !IsUnset(hi) && x > hi {
		x = hi
	}
	return x
}

// threshold suppresses quantization chatter in the velocity feedback
// term: values inside (-a, a) are reported as zero (spec.md §4.2/§4.4).
func threshold(x, a float32) float32 {
	if x > -a && x < a {
		return 0
	}
	return x
}

// Controllers is the ISR-owned control-law stack of spec.md §4.4: the
// three PID instances (d-current, q-current, position) and the position
// loop's own setpoint state.
type Controllers struct {
	PidD        PID
	PidQ        PID
	PidPosition PID

	// controlPosition is the position loop's running setpoint. Unset()
	// means "needs reseeding from the current unwrapped position on next
	// use" — set whenever the servo enters a mode that doesn't drive the
	// position loop, so the next position-mode entry reseeds it.
	controlPosition float32

	// controlPositionAcc is the float64 running sum behind
	// controlPosition, used by advancePosition.
	controlPositionAcc float64
}

// NewControllers constructs a Controllers with the three PIDs
// parametrized from servo config.
func NewControllers(cfg ServoConfig) *Controllers {
	return &Controllers{
		PidD:            NewPID(cfg.PidD),
		PidQ:            NewPID(cfg.PidQ),
		PidPosition:     NewPID(cfg.PidPosition),
		controlPosition: Unset(),
	}
}

// ResetControlPosition marks the position loop's setpoint as needing
// reseeding; Servo.Tick calls it on entry into any mode that doesn't
// drive the position loop, so the next position-mode entry reseeds
// (spec.md §4.4 "after a mode reentry").
func (c *Controllers) ResetControlPosition() {
	c.controlPosition = Unset()
}

// pwmOpenLoop implements kPwm: copy the command's raw 3-vector with the
// documented output2<->output3 swap, then clamp each duty.
func pwmOpenLoop(cmd [3]float32, minPwm, maxPwm float32) [3]float32 {
	swapped := [3]float32{cmd[0], cmd[2], cmd[1]}
	for i := range swapped {
		swapped[i] = clampDuty(swapped[i], minPwm, maxPwm)
	}
	return swapped
}

// voltageOpenLoop implements kVoltage: convert each phase voltage to a
// duty and clamp.
func voltageOpenLoop(phaseV [3]float32, filtBusV, pwmMin, pwmMinBlend, minPwm, maxPwm float32) [3]float32 {
	var out [3]float32
	for i, v := range phaseV {
		out[i] = clampDuty(voltageToDuty(v, filtBusV, pwmMin, pwmMinBlend), minPwm, maxPwm)
	}
	return out
}

// voltageFoc implements kVoltageFoc: an open-loop inverse Park using
// the command's own theta rather than the measured electrical angle (q
// = command voltage clamped to max, d = 0), then feeds kVoltage.
func voltageFoc(thetaRad, voltageFocV, maxVoltage, filtBusV, pwmMin, pwmMinBlend, minPwm, maxPwm float32) [3]float32 {
	qV := clampAbs(voltageFocV, maxVoltage)
	sinT := float32(math.Sin(float64(thetaRad)))
	cosT := float32(math.Cos(float64(thetaRad)))
	phaseV := inverseParkPhases(0, qV, sinT, cosT)
	return voltageOpenLoop(phaseV, filtBusV, pwmMin, pwmMinBlend, minPwm, maxPwm)
}

// voltageDq implements kVoltageDq: clamp d/q voltages to max voltage,
// inverse Park with the measured electrical angle, then feed kVoltage.
func voltageDq(dV, qV, maxVoltage, sinTheta, cosTheta, filtBusV, pwmMin, pwmMinBlend, minPwm, maxPwm float32) [3]float32 {
	dV = clampAbs(dV, maxVoltage)
	qV = clampAbs(qV, maxVoltage)
	phaseV := inverseParkPhases(dV, qV, sinTheta, cosTheta)
	return voltageOpenLoop(phaseV, filtBusV, pwmMin, pwmMinBlend, minPwm, maxPwm)
}

// qCurrentPositionDerate implements the position-limit pre-derating of
// spec.md §4.4's current controller: q is scaled toward zero as
// unwrapped position overshoots either configured bound.
func qCurrentPositionDerate(qSetA, unwrapped, positionMin, positionMax, derateWidth float32) float32 {
	if !IsUnset(positionMax) && unwrapped > positionMax && qSetA > 0 {
		frac := float32(1) - (unwrapped-positionMax)/derateWidth
		if frac < 0 {
			frac = 0
		}
		qSetA *= frac
	}
	if !IsUnset(positionMin) && unwrapped < positionMin && qSetA < 0 {
		frac := float32(1) - (positionMin-unwrapped)/derateWidth
		if frac < 0 {
			frac = 0
		}
		qSetA *= frac
	}
	return qSetA
}

// thermalCurrentLimit implements spec.md §4.4's thermal derating: a
// current ceiling that linearly interpolates from max_current_A at
// derate_fraction <= 0 to derate_current_A at derate_fraction >= 1.
func thermalCurrentLimit(fetTempC, derateTempC, faultTempC, maxCurrentA, derateCurrentA float32) float32 {
	if faultTempC <= derateTempC {
		return maxCurrentA
	}
	frac := (fetTempC - derateTempC) / (faultTempC - derateTempC)
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	limit := maxCurrentA + frac*(derateCurrentA-maxCurrentA)
	if limit < 0 {
		limit = 0
	}
	if limit > maxCurrentA {
		limit = maxCurrentA
	}
	return limit
}

// current implements kCurrent's d/q current loop: position-limit
// derating on q, thermal derating on both axes, then the two PIDs
// produce voltages with resistive/back-EMF feedforward.
func (c *Controllers) current(dSetA, qSetA, measuredIdA, measuredIqA, velocityUnitsPerS, rate float32,
	unwrapped, positionMin, positionMax, derateWidth float32,
	fetTempC float32, cfg MotorConfig, servo ServoConfig) (dV, qV float32) {

	qSetA = qCurrentPositionDerate(qSetA, unwrapped, positionMin, positionMax, derateWidth)

	limit := thermalCurrentLimit(fetTempC, servo.DerateTemperatureC, servo.FaultTemperatureC, servo.MaxCurrentA, servo.DerateCurrentA)
	dSetA = clampAbs(dSetA, limit)
	qSetA = clampAbs(qSetA, limit)

	dV = feedforwardScale*measuredIdA*cfg.ResistanceOhm + c.PidD.Update(measuredIdA, dSetA, 0, 0, rate, 1, 1)
	qV = feedforwardScale*(measuredIqA*cfg.ResistanceOhm-velocityUnitsPerS*cfg.VPerHz/cfg.UnwrappedScale) +
		c.PidQ.Update(measuredIqA, qSetA, 0, 0, rate, 1, 1)
	return dV, qV
}

// fluxBrakeCurrentA computes the d-axis braking current of spec.md
// §4.4's position controller: dissipate excess bus voltage above a
// threshold into the motor.
func fluxBrakeCurrentA(filt1msBusV, fluxBrakeMinV, fluxBrakeResistanceOhm float32) float32 {
	if fluxBrakeResistanceOhm == 0 {
		return 0
	}
	excess := filt1msBusV - fluxBrakeMinV
	if excess < 0 {
		excess = 0
	}
	return excess / fluxBrakeResistanceOhm
}

// advancePosition implements the position-loop setpoint update of
// spec.md §4.4: seed control_position on reentry or explicit new
// position, advance by velocity_cmd/rate, clamp to the configured
// bounds, snap to stop_position if velocity_cmd would carry the
// setpoint past it, and zero velocity_cmd if the clamp/snap produced no
// change (so the PID does not wind up against a wall).
func (c *Controllers) advancePosition(newPositionCmd, velocityCmd, positionMin, positionMax, stopPosition, unwrapped, rate float32) float32 {
	if !IsUnset(newPositionCmd) {
		c.controlPosition = newPositionCmd
	} else if IsUnset(c.controlPosition) {
		c.controlPosition = unwrapped
	}

	// Advance in float64 so many small velocity steps do not drift short
	// of their sum; resync whenever controlPosition was set elsewhere.
	if float32(c.controlPositionAcc) != c.controlPosition {
		c.controlPositionAcc = float64(c.controlPosition)
	}
	prev := c.controlPosition
	acc := c.controlPositionAcc + float64(velocityCmd)/float64(rate)
	if clamped := clampOptional(float32(acc), positionMin, positionMax); clamped != float32(acc) {
		acc = float64(clamped)
	}

	if !IsUnset(stopPosition) {
		if velocityCmd > 0 && acc >= float64(stopPosition) {
			acc = float64(stopPosition)
		} else if velocityCmd < 0 && acc <= float64(stopPosition) {
			acc = float64(stopPosition)
		}
	}

	next := float32(acc)
	if next == prev {
		velocityCmd = 0
	}
	c.controlPositionAcc = acc
	c.controlPosition = next
	return velocityCmd
}

// positionTorqueNm implements the position PID → torque step shared by
// kPosition, kPositionTimeout, and kZeroVelocity: threshold the
// measured velocity, run the position PID against control_position,
// add feedforward, clamp to the mode's torque ceiling.
func (c *Controllers) positionTorqueNm(unwrapped, measuredVelocity, velocityCmd, rate, kpScale, kdScale, feedforwardNm, maxTorqueNm, velocityThreshold float32) float32 {
	thresholded := threshold(measuredVelocity, velocityThreshold)
	torque := c.PidPosition.Update(unwrapped, c.controlPosition, thresholded, velocityCmd, rate, kpScale, kdScale) + feedforwardNm
	return clampAbs(torque, maxTorqueNm)
}

// stayWithinBoundsTarget implements kStayWithinBounds's target
// selection: a bound only becomes a target once the motor has
// overshot it.
func stayWithinBoundsTarget(unwrapped, boundsMin, boundsMax float32) (target float32, active bool) {
	if !IsUnset(boundsMin) && unwrapped < boundsMin {
		return boundsMin, true
	}
	if !IsUnset(boundsMax) && unwrapped > boundsMax {
		return boundsMax, true
	}
	return 0, false
}

package core

// kCalibrateCount is the number of raw current samples averaged per
// channel during ModeCalibrating (spec.md §4.3).
const kCalibrateCount = 256

// kCalibrationToleranceCounts bounds how far a channel's average may
// sit from mid-scale (2048) and still be accepted.
const kCalibrationToleranceCounts = 200

// calibration accumulates raw phase-current samples while in
// ModeCalibrating and resolves them into offsets once kCalibrateCount
// samples have been seen.
type calibration struct {
	sums  [3]int32
	count int
}

func (c *calibration) reset() {
	*c = calibration{}
}

// accumulate folds in one tick's raw currents. done reports whether
// kCalibrateCount samples have now been seen; when done, ok and offsets
// report whether every channel landed within tolerance of mid-scale.
func (c *calibration) accumulate(raw [3]ADCValue) (done bool, ok bool, offsets [3]ADCValue) {
	for i := 0; i < 3; i++ {
		c.sums[i] += int32(raw[i])
	}
	c.count++
	if c.count < kCalibrateCount {
		return false, false, offsets
	}

	ok = true
	for i := 0; i < 3; i++ {
		avg := c.sums[i] / int32(kCalibrateCount)
		if avg < 2048-kCalibrationToleranceCounts || avg > 2048+kCalibrationToleranceCounts {
			ok = false
		}
		offsets[i] = ADCValue(avg)
	}
	return true, ok, offsets
}

// nextMode resolves one cycle's mode transition (spec.md §4.3), given
// the mode currently in Status, the mode the active command requests,
// and the outcome of any in-progress calibration. It does not evaluate
// the fault triggers of §4.3 — the caller applies those first and only
// calls nextMode when no fault fired this cycle.
//
// The Stopped -> Enabling promotion is deliberately absent here: that
// transition happens in Command(), outside the ISR (spec.md §4.3 "done
// only outside ISR"), and Enabling -> Calibrating happens in
// PollMillisecond. By the time nextMode runs, the ISR only ever
// observes Stopped, Enabling (held, waiting on PollMillisecond),
// Calibrating, CalibrationComplete, or an already-active torque mode.
func nextMode(current, commanded Mode, calibDone, calibOK, startOutsideLimit bool) (next Mode, fault FaultCode) {
	if commanded == ModeStopped {
		return ModeStopped, FaultSuccess
	}

	switch current {
	case ModeFault:
		return ModeFault, FaultSuccess
	case ModePositionTimeout:
		return ModePositionTimeout, FaultSuccess
	case ModeStopped, ModeEnabling:
		return current, FaultSuccess
	case ModeCalibrating:
		if !calibDone {
			return ModeCalibrating, FaultSuccess
		}
		if !calibOK {
			return ModeFault, FaultCalibrationFault
		}
		return ModeCalibrationComplete, FaultSuccess
	default:
		if !commanded.IsTorqueMode() {
			return current, FaultSuccess
		}
		if (commanded == ModePosition || commanded == ModeStayWithinBounds) && startOutsideLimit {
			return ModeFault, FaultStartOutsideLimit
		}
		return commanded, FaultSuccess
	}
}

// evaluateFaults implements spec.md §4.3's per-cycle fault triggers,
// checked outside kStopped/kFault. Triggers are checked in a fixed
// priority order so that when more than one condition is true in the
// same cycle the reported fault is deterministic.
func evaluateFaults(current Mode, motorFault bool, busV, maxVoltage, fetTempC, faultTempC float32,
	encoderFault, overrun bool, needsDQ, polesConfigured bool) FaultCode {
	if current == ModeStopped || current == ModeFault {
		return FaultSuccess
	}
	switch {
	case motorFault:
		return FaultMotorDriverFault
	case busV > maxVoltage:
		return FaultOverVoltage
	case fetTempC > faultTempC:
		return FaultOverTemperature
	case encoderFault:
		return FaultEncoderFault
	case overrun:
		return FaultPwmCycleOverrun
	case needsDQ && !polesConfigured:
		return FaultMotorNotConfigured
	default:
		return FaultSuccess
	}
}

// advanceTimeout implements spec.md §4.3's command watchdog: decrement
// by 1/rate each tick, and if it reaches zero while in kPosition or
// kStayWithinBounds, the caller should force the mode to
// kPositionTimeout.
func advanceTimeout(remaining, rate float32) (next float32, expired bool) {
	if remaining <= 0 {
		return 0, false
	}
	remaining -= 1.0 / rate
	if remaining <= 0 {
		return 0, true
	}
	return remaining, false
}

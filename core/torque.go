package core

import "math"

// kMaxUnconfiguredCurrent bounds q-axis current when v_per_hz is zero,
// i.e. MotorConfig hasn't been given a real back-EMF constant yet
// (spec.md §4.4 Torque model).
const kMaxUnconfiguredCurrent = 5.0

// torqueConstant derives Kt from the motor's back-EMF constant:
// Kv = 30/v_per_hz (RPM per volt), Kt = fudge * 60 / (2*pi*Kv).
func torqueConstant(vPerHz, fudge float32) float32 {
	if vPerHz == 0 {
		return 0.1
	}
	kv := 30.0 / vPerHz
	return fudge * 60.0 / (2 * math.Pi * float32(kv))
}

// currentToTorque converts a q-axis current command to a torque
// command via the motor's torque constant, with a cubic correction
// that rolls the effective constant off above rotationCurrentCutoffA
// (spec.md §4.4's "cubic rotation-scaling around an operating-point
// cutoff current").
func currentToTorque(currentA float32, cfg MotorConfig, fudge, rotationCurrentCutoffA float32) float32 {
	if cfg.VPerHz == 0 {
		if currentA > kMaxUnconfiguredCurrent {
			currentA = kMaxUnconfiguredCurrent
		} else if currentA < -kMaxUnconfiguredCurrent {
			currentA = -kMaxUnconfiguredCurrent
		}
		return currentA * torqueConstant(0, fudge)
	}

	kt := torqueConstant(cfg.VPerHz, fudge)
	return currentA * kt * rotationScale(currentA, rotationCurrentCutoffA)
}

// torqueToCurrent is the inverse of currentToTorque: the position
// control laws use it to turn a torque command into a q-axis current
// setpoint, and tests use it to check the round-trip property (spec.md §8).
func torqueToCurrent(torqueNm float32, cfg MotorConfig, fudge, rotationCurrentCutoffA float32) float32 {
	if cfg.VPerHz == 0 {
		kt := torqueConstant(0, fudge)
		if kt == 0 {
			return 0
		}
		return clampAbs(torqueNm/kt, kMaxUnconfiguredCurrent)
	}

	kt := torqueConstant(cfg.VPerHz, fudge)
	if kt == 0 {
		return 0
	}

	// rotationScale depends on the current we're solving for; a couple
	// of fixed-point iterations converge well inside the cubic term's
	// working range since rotationScale is close to 1 near the cutoff.
	currentA := torqueNm / kt
	for i := 0; i < 4; i++ {
		currentA = torqueNm / (kt * rotationScale(currentA, rotationCurrentCutoffA))
	}
	return currentA
}

// rotationScale is 1 below the cutoff current and rolls off with the
// cube of the overshoot past it, in either current direction.
func rotationScale(currentA, cutoffA float32) float32 {
	if cutoffA <= 0 {
		return 1
	}
	mag := currentA
	if mag < 0 {
		mag = -mag
	}
	if mag <= cutoffA {
		return 1
	}
	overshoot := (mag - cutoffA) / cutoffA
	return 1.0 / (1.0 + overshoot*overshoot*overshoot)
}

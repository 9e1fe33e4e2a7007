package core

import "testing"

func TestCalibrationAccumulatesUntilDone(t *testing.T) {
	var c calibration
	for i := 0; i < kCalibrateCount-1; i++ {
		done, _, _ := c.accumulate([3]ADCValue{2048, 2048, 2048})
		if done {
			t.Fatalf("accumulate reported done after %d samples, want %d", i+1, kCalibrateCount)
		}
	}
	done, ok, offsets := c.accumulate([3]ADCValue{2048, 2048, 2048})
	if !done {
		t.Fatalf("accumulate did not report done at sample %d", kCalibrateCount)
	}
	if !ok {
		t.Errorf("ok = false, want true for mid-scale averages")
	}
	for i, off := range offsets {
		if off != 2048 {
			t.Errorf("offsets[%d] = %v, want 2048", i, off)
		}
	}
}

func TestCalibrationOutOfTolerance(t *testing.T) {
	var c calibration
	for i := 0; i < kCalibrateCount-1; i++ {
		c.accumulate([3]ADCValue{2048 + kCalibrationToleranceCounts + 50, 2048, 2048})
	}
	done, ok, _ := c.accumulate([3]ADCValue{2048 + kCalibrationToleranceCounts + 50, 2048, 2048})
	if !done {
		t.Fatalf("accumulate did not report done")
	}
	if ok {
		t.Errorf("ok = true, want false when a channel sits outside tolerance")
	}
}

func TestCalibrationResetClearsState(t *testing.T) {
	var c calibration
	c.accumulate([3]ADCValue{4000, 4000, 4000})
	c.reset()
	if c.count != 0 || c.sums[0] != 0 {
		t.Errorf("reset left count=%d sums[0]=%d, want zero", c.count, c.sums[0])
	}
}

func TestNextModeCommandedStopAlwaysWins(t *testing.T) {
	next, fault := nextMode(ModeCurrent, ModeStopped, false, false, false)
	if next != ModeStopped || fault != FaultSuccess {
		t.Errorf("nextMode = (%v, %v), want (stopped, success)", next, fault)
	}
}

func TestNextModeFaultIsSticky(t *testing.T) {
	next, _ := nextMode(ModeFault, ModeCurrent, false, false, false)
	if next != ModeFault {
		t.Errorf("nextMode from fault = %v, want fault to stick", next)
	}
}

func TestNextModeCalibratingWaitsForDone(t *testing.T) {
	next, fault := nextMode(ModeCalibrating, ModePosition, false, false, false)
	if next != ModeCalibrating || fault != FaultSuccess {
		t.Errorf("nextMode mid-calibration = (%v, %v), want (calibrating, success)", next, fault)
	}
}

func TestNextModeCalibrationFailure(t *testing.T) {
	next, fault := nextMode(ModeCalibrating, ModePosition, true, false, false)
	if next != ModeFault || fault != FaultCalibrationFault {
		t.Errorf("nextMode failed calibration = (%v, %v), want (fault, calibration_fault)", next, fault)
	}
}

func TestNextModeCalibrationSuccessGoesToComplete(t *testing.T) {
	next, fault := nextMode(ModeCalibrating, ModePosition, true, true, false)
	if next != ModeCalibrationComplete || fault != FaultSuccess {
		t.Errorf("nextMode succeeded calibration = (%v, %v), want (calibration_complete, success)", next, fault)
	}
}

func TestNextModeStartOutsideLimitFaults(t *testing.T) {
	next, fault := nextMode(ModeCalibrationComplete, ModePosition, false, false, true)
	if next != ModeFault || fault != FaultStartOutsideLimit {
		t.Errorf("nextMode start-outside-limit = (%v, %v), want (fault, start_outside_limit)", next, fault)
	}
}

func TestNextModeEntersRequestedTorqueMode(t *testing.T) {
	next, fault := nextMode(ModeCalibrationComplete, ModeCurrent, false, false, false)
	if next != ModeCurrent || fault != FaultSuccess {
		t.Errorf("nextMode torque entry = (%v, %v), want (current, success)", next, fault)
	}
}

func TestNextModePositionTimeoutHolds(t *testing.T) {
	next, _ := nextMode(ModePositionTimeout, ModePosition, false, false, false)
	if next != ModePositionTimeout {
		t.Errorf("nextMode from position_timeout = %v, want it to hold", next)
	}
}

func TestEvaluateFaultsPriorityOrder(t *testing.T) {
	// motor fault outranks over-voltage even when both are true.
	got := evaluateFaults(ModeCurrent, true, 100, 10, 20, 80, true, true, true, true)
	if got != FaultMotorDriverFault {
		t.Errorf("evaluateFaults = %v, want motor_driver_fault to take priority", got)
	}
}

func TestEvaluateFaultsOverVoltage(t *testing.T) {
	got := evaluateFaults(ModeCurrent, false, 100, 10, 20, 80, false, false, true, true)
	if got != FaultOverVoltage {
		t.Errorf("evaluateFaults = %v, want over_voltage", got)
	}
}

func TestEvaluateFaultsNoneWhenStoppedOrFault(t *testing.T) {
	if got := evaluateFaults(ModeStopped, true, 100, 10, 20, 80, true, true, true, false); got != FaultSuccess {
		t.Errorf("evaluateFaults in stopped = %v, want success (faults suppressed)", got)
	}
	if got := evaluateFaults(ModeFault, true, 100, 10, 20, 80, true, true, true, false); got != FaultSuccess {
		t.Errorf("evaluateFaults in fault = %v, want success (faults suppressed)", got)
	}
}

func TestEvaluateFaultsMotorNotConfigured(t *testing.T) {
	got := evaluateFaults(ModeCurrent, false, 0, 10, 20, 80, false, false, true, false)
	if got != FaultMotorNotConfigured {
		t.Errorf("evaluateFaults = %v, want motor_not_configured", got)
	}
}

func TestEvaluateFaultsClean(t *testing.T) {
	got := evaluateFaults(ModeCurrent, false, 0, 10, 20, 80, false, false, true, true)
	if got != FaultSuccess {
		t.Errorf("evaluateFaults = %v, want success", got)
	}
}

func TestAdvanceTimeoutCountsDownAndExpires(t *testing.T) {
	rate := float32(1000)
	remaining := float32(0.002) // 2 ticks at 1kHz
	remaining, expired := advanceTimeout(remaining, rate)
	if expired {
		t.Fatalf("expired on first tick, want not yet")
	}
	_, expired = advanceTimeout(remaining, rate)
	if !expired {
		t.Errorf("did not expire after remaining time elapsed")
	}
}

func TestAdvanceTimeoutAlreadyZeroStaysZero(t *testing.T) {
	next, expired := advanceTimeout(0, 1000)
	if next != 0 || expired {
		t.Errorf("advanceTimeout(0, ...) = (%v, %v), want (0, false)", next, expired)
	}
}

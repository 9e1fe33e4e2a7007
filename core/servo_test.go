package core

import "testing"

// baseMotorConfig returns a MotorConfig with just enough set (nonzero
// pole count, a back-EMF constant) to clear the kMotorNotConfigured
// fault check and drive electricalTheta sanely, matching the profile
// spec.md §8's scenarios commission before anything else.
func baseMotorConfig() MotorConfig {
	return MotorConfig{
		Poles:          14,
		VPerHz:         0.1,
		UnwrappedScale: 1.0,
	}
}

func almostEqual(a, b, tol float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// Scenario 1: cold start to stopped. A freshly started servo commanded
// to kStopped drives zero PWM and leaves the gate driver disabled.
func TestServoColdStartToStopped(t *testing.T) {
	s, _, pwm, _, _, motor, _ := newTestServo(40000)
	if err := s.UpdateConfig(baseMotorConfig(), DefaultServoConfig(), DefaultPositionConfig()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cmd := NewCommandData()
	cmd.Mode = ModeStopped
	if err := s.Command(cmd); err != nil {
		t.Fatalf("Command: %v", err)
	}

	s.Tick()

	// kStopped writes the center duty (0.5 on every phase) rather than a
	// literal zero count: on this center-aligned PWM scheme, 0.5 is the
	// zero-applied-voltage point, not an all-off one.
	centerDuty := PWMValue(0.5 * float32(pwm.GetMaxValue()))
	for phase, duty := range pwm.duty {
		if duty != centerDuty {
			t.Errorf("pwm.duty[%d] = %d, want center duty %d", phase, duty, centerDuty)
		}
	}
	if motor.enabled {
		t.Error("motor.enabled = true, want false")
	}
	if motor.powered {
		t.Error("motor.powered = true, want false")
	}
	if got := s.Status().Mode; got != ModeStopped {
		t.Errorf("Mode = %s, want stopped", got)
	}
}

// Scenario 2: calibration path. Commanding kCurrent from kStopped walks
// through kEnabling -> kCalibrating -> kCalibrationComplete -> kCurrent,
// resolving the phase-current offsets from 256 identical raw samples.
func TestServoCalibrationPath(t *testing.T) {
	s, adc, _, _, _, motor, _ := newTestServo(40000)
	if err := s.UpdateConfig(baseMotorConfig(), DefaultServoConfig(), DefaultPositionConfig()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cmd := NewCommandData()
	cmd.Mode = ModeCurrent
	cmd.DCurrentA = 0
	cmd.QCurrentA = 0
	if err := s.Command(cmd); err != nil {
		t.Fatalf("Command: %v", err)
	}
	if got := s.Status().Mode; got != ModeEnabling {
		t.Fatalf("Mode after Command = %s, want enabling", got)
	}

	s.PollMillisecond()
	if got := s.Status().Mode; got != ModeCalibrating {
		t.Fatalf("Mode after PollMillisecond = %s, want calibrating", got)
	}
	if !motor.enabled {
		t.Error("motor.enabled = false, want true once calibrating")
	}

	adc.raw = [5]ADCValue{2050, 2045, 2052, 0, 0}
	for i := 0; i < kCalibrateCount; i++ {
		s.Tick()
	}

	if got := s.Status().Mode; got != ModeCalibrationComplete {
		t.Fatalf("Mode after %d ticks = %s, want calibration_complete", kCalibrateCount, got)
	}
	want := [3]ADCValue{2050, 2045, 2052}
	if got := s.Status().ADCOffset; got != want {
		t.Errorf("ADCOffset = %v, want %v", got, want)
	}

	s.Tick()
	if got := s.Status().Mode; got != ModeCurrent {
		t.Errorf("Mode on the following tick = %s, want current", got)
	}
}

// Scenario 3: a PWM-overrun fault detected while running open-loop
// FOC voltage mode drops the servo into kFault with kPwmCycleOverrun on the very
// cycle the gate monitor reads high, without needing to walk through
// calibration first — Status.Mode is the ISR's own state, so a
// same-package test may seed it directly.
func TestServoPwmOverrunFault(t *testing.T) {
	s, _, _, gpio, _, _, _ := newTestServo(40000)
	if err := s.UpdateConfig(baseMotorConfig(), DefaultServoConfig(), DefaultPositionConfig()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.status.Mode = ModeVoltageFoc

	cmd := NewCommandData()
	cmd.Mode = ModeVoltageFoc
	cmd.ThetaRad = 0
	cmd.VoltageFocV = 0
	if err := s.Command(cmd); err != nil {
		t.Fatalf("Command: %v", err)
	}

	gpio.raisePin(0)
	s.Tick()

	if got := s.Status().Mode; got != ModeFault {
		t.Fatalf("Mode = %s, want fault", got)
	}
	if got := s.Status().Fault; got != FaultPwmCycleOverrun {
		t.Errorf("Fault = %s, want pwm_cycle_overrun", got)
	}
}

// Scenario 4: position-loop setpoint advance clamps at position_max
// and snaps to stop_position, after which the setpoint stops moving
// even though velocity_cmd is still nonzero on the wire.
func TestServoPositionClampWithStop(t *testing.T) {
	const rate = float32(40000)
	s, _, _, _, _, _, _ := newTestServo(rate)
	motorCfg := baseMotorConfig()
	posCfg := DefaultPositionConfig()
	posCfg.PositionMax = 10
	if err := s.UpdateConfig(motorCfg, DefaultServoConfig(), posCfg); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.status.Mode = ModePosition

	seed := NewCommandData()
	seed.Mode = ModePosition
	seed.Position = 1.0
	seed.Velocity = 2.0
	seed.StopPosition = 1.5
	if err := s.Command(seed); err != nil {
		t.Fatalf("Command (seed): %v", err)
	}

	s.Tick()
	if got := s.controllers.controlPosition; !almostEqual(got, 1.00005, 1e-6) {
		t.Fatalf("control_position after 1 tick = %v, want 1.00005", got)
	}

	hold := NewCommandData()
	hold.Mode = ModePosition
	hold.Position = Unset()
	hold.Velocity = 2.0
	hold.StopPosition = 1.5
	if err := s.Command(hold); err != nil {
		t.Fatalf("Command (hold): %v", err)
	}

	for i := 1; i < 10000; i++ {
		s.Tick()
	}
	if got := s.controllers.controlPosition; !almostEqual(got, 1.5, 1e-4) {
		t.Fatalf("control_position at tick 10000 = %v, want 1.5 (saturated)", got)
	}

	// One more tick: still snapped at stop_position, so velocity_cmd's
	// nonzero wire value is no longer moving the setpoint.
	s.Tick()
	if got := s.controllers.controlPosition; !almostEqual(got, 1.5, 1e-4) {
		t.Fatalf("control_position at tick 10001 = %v, want still 1.5", got)
	}
}

// Control.TorqueNm carries the commanded torque the position law
// produced, distinct from Status.TorqueNm which is the measured
// current-derived estimate. The default config has zero position
// gains, so the test gives the position PID a proportional gain.
func TestServoControlTorqueNmReflectsCommandedTorque(t *testing.T) {
	const rate = float32(40000)
	s, _, _, _, _, _, _ := newTestServo(rate)
	motorCfg := baseMotorConfig()
	servoCfg := DefaultServoConfig()
	servoCfg.PidPosition.Kp = 1.0
	if err := s.UpdateConfig(motorCfg, servoCfg, DefaultPositionConfig()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.status.Mode = ModePosition

	cmd := NewCommandData()
	cmd.Mode = ModePosition
	cmd.Position = 1.0
	cmd.Velocity = 0
	cmd.KpScale = 1.0
	cmd.MaxTorqueNm = 0.05
	if err := s.Command(cmd); err != nil {
		t.Fatalf("Command: %v", err)
	}

	s.Tick()

	gotControl := s.Control().TorqueNm
	if gotControl == 0 {
		t.Fatalf("Control.TorqueNm = 0, want nonzero commanded torque toward target position")
	}
	if gotControl > cmd.MaxTorqueNm+1e-4 || gotControl < -cmd.MaxTorqueNm-1e-4 {
		t.Fatalf("Control.TorqueNm = %v, want within +/-MaxTorqueNm (%v)", gotControl, cmd.MaxTorqueNm)
	}

	// Status.TorqueNm is the measured estimate derived from q-current,
	// not a copy of the commanded value, and with zero current flowing
	// before the current PID has wound up it differs from Control's.
	if s.Status().TorqueNm == gotControl && gotControl != 0 {
		t.Fatalf("Status.TorqueNm unexpectedly equals Control.TorqueNm (%v); they are different quantities", gotControl)
	}
}

// torqueToCurrent is driven by the commanded torque scaled by
// MotorConfig.UnwrappedScale, matching how current<->torque conversion
// is scaled on the estimator side; two servos commanded identically but
// configured with different UnwrappedScale values must produce the same
// commanded torque but different commanded q-current.
func TestServoPositionTorqueToCurrentAppliesUnwrappedScale(t *testing.T) {
	const rate = float32(40000)

	runOnce := func(scale float32) (torqueNm, qCurrentA float32) {
		s, _, _, _, _, _, _ := newTestServo(rate)
		motorCfg := baseMotorConfig()
		motorCfg.UnwrappedScale = scale
		servoCfg := DefaultServoConfig()
		servoCfg.PidPosition.Kp = 1.0
		if err := s.UpdateConfig(motorCfg, servoCfg, DefaultPositionConfig()); err != nil {
			t.Fatalf("UpdateConfig: %v", err)
		}
		if err := s.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
		s.status.Mode = ModePosition

		cmd := NewCommandData()
		cmd.Mode = ModePosition
		cmd.Position = 1.0
		cmd.Velocity = 0
		cmd.KpScale = 1.0
		cmd.MaxTorqueNm = 0.05
		if err := s.Command(cmd); err != nil {
			t.Fatalf("Command: %v", err)
		}
		s.Tick()
		return s.Control().TorqueNm, s.Control().QCurrentA
	}

	torque1, current1 := runOnce(1.0)
	torque2, current2 := runOnce(2.0)

	if !almostEqual(torque1, torque2, 1e-6) {
		t.Fatalf("commanded torque should not depend on UnwrappedScale: got %v vs %v", torque1, torque2)
	}
	if almostEqual(current1, current2, 1e-6) {
		t.Fatalf("commanded q-current should scale with UnwrappedScale, got same value %v for scale=1 and scale=2", current1)
	}
}

// SetPosition is a one-shot hard override of control_position: the very
// next tick snaps control_position to it regardless of the prior value,
// then the field is consumed and a following tick resumes tracking
// Position/velocity_cmd normally.
func TestServoSetPositionOverridesControlPositionOnce(t *testing.T) {
	const rate = float32(40000)
	s, _, _, _, _, _, _ := newTestServo(rate)
	if err := s.UpdateConfig(baseMotorConfig(), DefaultServoConfig(), DefaultPositionConfig()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.status.Mode = ModePosition

	seed := NewCommandData()
	seed.Mode = ModePosition
	seed.Position = 5.0
	seed.Velocity = 0
	if err := s.Command(seed); err != nil {
		t.Fatalf("Command (seed): %v", err)
	}
	s.Tick()
	if got := s.controllers.controlPosition; !almostEqual(got, 5.0, 1e-4) {
		t.Fatalf("control_position after seed = %v, want 5.0", got)
	}

	override := NewCommandData()
	override.Mode = ModePosition
	override.Position = Unset()
	override.SetPosition = -2.0
	override.Velocity = 0
	if err := s.Command(override); err != nil {
		t.Fatalf("Command (override): %v", err)
	}
	s.Tick()
	if got := s.controllers.controlPosition; !almostEqual(got, -2.0, 1e-4) {
		t.Fatalf("control_position after SetPosition = %v, want -2.0", got)
	}

	// A following tick with no new Position/SetPosition holds the
	// overridden value, and SetPosition has been consumed.
	s.Tick()
	if got := s.controllers.controlPosition; !almostEqual(got, -2.0, 1e-4) {
		t.Fatalf("control_position one tick later = %v, want still -2.0", got)
	}
}

// RezeroPosition is a one-shot request that shifts unwrapped_raw by
// whole rotations so the scaled position lands closest to the
// requested value, visible in Status.UnwrappedScaled the same tick it
// is commanded.
func TestServoRezeroPositionShiftsUnwrappedScaledSameTick(t *testing.T) {
	const rate = float32(40000)
	s, _, _, _, _, _, _ := newTestServo(rate)
	if err := s.UpdateConfig(baseMotorConfig(), DefaultServoConfig(), DefaultPositionConfig()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.status.Mode = ModeStopped
	s.estimator.unwrappedRaw = 65536 * 3 // 3.0 scaled units at scale 1.0

	cmd := NewCommandData()
	cmd.Mode = ModeStopped
	cmd.RezeroPosition = 1.2
	if err := s.Command(cmd); err != nil {
		t.Fatalf("Command: %v", err)
	}
	s.Tick()

	if got := s.Status().UnwrappedScaled; !almostEqual(got, 1.0, 1e-4) {
		t.Fatalf("UnwrappedScaled after rezero = %v, want 1.0", got)
	}

	// One-shot: a following tick with no new command doesn't rezero again.
	s.estimator.unwrappedRaw += 65536 * 5
	s.Tick()
	if got := s.Status().UnwrappedScaled; almostEqual(got, 1.0, 1e-4) {
		t.Fatalf("UnwrappedScaled after second tick = %v, rezero should not have repeated", got)
	}
}

// UpdateConfig registers the three configuration structs with the
// servo's Dictionary, so Identify reflects whatever was last applied.
func TestServoIdentifyReflectsUpdatedConfig(t *testing.T) {
	s, _, _, _, _, _, _ := newTestServo(40000)
	motorCfg := baseMotorConfig()
	if err := s.UpdateConfig(motorCfg, DefaultServoConfig(), DefaultPositionConfig()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	compressed, err := s.Identify()
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if len(compressed) == 0 {
		t.Fatal("Identify returned no data")
	}
}

// Scenario 5: over-temperature derating. thermalCurrentLimit implements
// fet_T = derate_T + 0.5*(fault_T - derate_T) yielding a current
// exactly halfway between max_current_A and derate_current_A.
func TestServoOverTemperatureDerate(t *testing.T) {
	const derateT, faultT = float32(60), float32(80)
	const maxCurrentA, derateCurrentA = float32(10), float32(4)
	fetT := derateT + 0.5*(faultT-derateT)

	got := thermalCurrentLimit(fetT, derateT, faultT, maxCurrentA, derateCurrentA)
	want := maxCurrentA + 0.5*(derateCurrentA-maxCurrentA)
	if !almostEqual(got, want, 1e-4) {
		t.Errorf("thermalCurrentLimit(%v) = %v, want %v", fetT, got, want)
	}

	requested := maxCurrentA
	applied := clampAbs(requested, got)
	if !almostEqual(applied, want, 1e-4) {
		t.Errorf("applied current = %v, want %v", applied, want)
	}
}

// Scenario 6: a kPosition command with a short timeout_s that is never
// refreshed expires into kPositionTimeout, which can only be left by
// commanding kStopped — a further kPosition command is ignored.
func TestServoTimeoutToPositionTimeout(t *testing.T) {
	const rate = float32(40000)
	s, _, _, _, _, _, _ := newTestServo(rate)
	if err := s.UpdateConfig(baseMotorConfig(), DefaultServoConfig(), DefaultPositionConfig()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.status.Mode = ModePosition

	cmd := NewCommandData()
	cmd.Mode = ModePosition
	cmd.Position = 0
	cmd.Velocity = 0
	cmd.TimeoutS = 0.01
	if err := s.Command(cmd); err != nil {
		t.Fatalf("Command: %v", err)
	}

	for i := 0; i < 400; i++ {
		s.Tick()
	}
	if got := s.Status().Mode; got != ModePositionTimeout {
		t.Fatalf("Mode after 400 ticks = %s, want position_timeout", got)
	}

	again := NewCommandData()
	again.Mode = ModePosition
	again.Position = 0
	again.Velocity = 0
	if err := s.Command(again); err != nil {
		t.Fatalf("Command (re-request position): %v", err)
	}
	s.Tick()
	if got := s.Status().Mode; got != ModePositionTimeout {
		t.Fatalf("Mode after re-commanding position = %s, want still position_timeout", got)
	}

	stop := NewCommandData()
	stop.Mode = ModeStopped
	if err := s.Command(stop); err != nil {
		t.Fatalf("Command (stop): %v", err)
	}
	s.Tick()
	if got := s.Status().Mode; got != ModeStopped {
		t.Fatalf("Mode after stop = %s, want stopped", got)
	}
}

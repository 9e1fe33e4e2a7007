package core

import (
	"errors"
	"fmt"
	"math"
)

// kStartupInvalidMs is how long after entering ModeCalibrating the
// encoder is treated as not-yet-settled: deltas during this window
// still advance the raw reading but never accumulate into position or
// velocity, and never trigger an encoder fault (spec.md §6).
const kStartupInvalidMs = 10

// Servo is the single concrete control object of spec.md §9's "one impl
// class with a thin facade": it owns Status, Control, the three PID
// instances, the command channel, and the HAL collaborators, and
// exposes the handful of entry points external code calls.
type Servo struct {
	motorCfg MotorConfig
	servoCfg ServoConfig
	posCfg   PositionConfig

	status  Status
	control Control

	sampler     *Sampler
	estimator   positionEstimator
	controllers *Controllers
	calib       calibration

	commands   *commandSlots
	dictionary *Dictionary

	sensor    PositionSensor
	driver    MotorDriver
	telemetry TelemetryManager

	rateHz float32

	started bool

	msClock      uint32
	startupMs    uint32
	encoderValid bool

	lastCommand CommandData
}

// NewServo constructs a Servo at the given control rate, wired to the
// three gate-monitor inputs and its external collaborators.
func NewServo(rateHz float32, monitorPins [3]GPIOPin, sensor PositionSensor, driver MotorDriver, telemetry TelemetryManager) *Servo {
	servoCfg := DefaultServoConfig()
	s := &Servo{
		servoCfg:    servoCfg,
		posCfg:      DefaultPositionConfig(),
		sampler:     NewSampler(monitorPins),
		controllers: NewControllers(servoCfg),
		commands:    newCommandSlots(),
		dictionary:  NewDictionary(),
		sensor:      sensor,
		driver:      driver,
		telemetry:   telemetry,
		rateHz:      rateHz,
	}
	s.status.Mode = ModeStopped
	return s
}

// Start initializes the ADC/PWM/DAC peripherals through their HAL
// interfaces and readies the motor driver for a later Enable. It may
// not be called twice.
func (s *Servo) Start() error {
	if s.started {
		return fmt.Errorf("servo: Start called twice")
	}

	if err := MustADC().Init(ADCConfig{ReferenceMilliVolt: 3300, SampleCycles: s.servoCfg.ADCSampleCycles}); err != nil {
		return err
	}
	// A cycleTicks hint of 0 asks the driver to derive the center-aligned
	// timer period from its own clock at the configured control rate;
	// core stays agnostic of register-level clock math (spec.md §1).
	if _, err := MustPWM().ConfigureThreePhase(0); err != nil {
		return err
	}
	if dac := DAC(); dac != nil {
		if err := dac.Init(); err != nil {
			return err
		}
	}

	MustPWM().SetPower(false)
	s.driver.Enable(false)
	s.started = true
	return nil
}

// Command is the non-RT producer entry point. It rejects the modes
// that only the ISR/PollMillisecond may assign, publishes the command
// to the channel, and performs the Stopped -> Enabling promotion that
// spec.md §4.3 requires happen outside the ISR.
func (s *Servo) Command(cmd CommandData) error {
	switch cmd.Mode {
	case ModeFault, ModeEnabling, ModeCalibrating, ModeCalibrationComplete:
		return fmt.Errorf("servo: Command rejects mode %s", cmd.Mode)
	}

	s.commands.publish(cmd, s.servoCfg.DefaultTimeoutS, s.status.UnwrappedScaled)

	if s.status.Mode == ModeStopped && cmd.Mode.IsTorqueMode() {
		s.status.Mode = ModeEnabling
	}
	return nil
}

// PollMillisecond is the non-RT periodic tick: it drives the gate-driver
// enable line on Enabling -> Calibrating, dispatches the cooperative
// millisecond timer list, and advances the startup encoder-invalid
// counter.
func (s *Servo) PollMillisecond() {
	s.msClock++
	TimerDispatch(s.msClock)

	if s.status.Mode == ModeEnabling {
		s.driver.Enable(true)
		s.status.Mode = ModeCalibrating
		s.calib.reset()
		s.startupMs = 0
		s.encoderValid = false
	}

	if !s.encoderValid {
		s.startupMs++
		if s.startupMs >= kStartupInvalidMs {
			s.encoderValid = true
		}
	}
}

// Status returns the ISR-owned status snapshot. Callers get a relaxed,
// idempotent read of whatever fields they look at (spec.md §9) — there
// is no lock and no composite atomicity.
func (s *Servo) Status() Status { return s.status }

// Config returns the current motor/servo/position configuration.
func (s *Servo) Config() (MotorConfig, ServoConfig, PositionConfig) {
	return s.motorCfg, s.servoCfg, s.posCfg
}

// Control returns the ISR-owned per-cycle control output snapshot.
func (s *Servo) Control() Control { return s.control }

// Motor returns the motor driver collaborator, so telemetry or
// configuration code can query its fault line directly if needed.
func (s *Servo) Motor() MotorDriver { return s.driver }

// Clock returns the last published ISR tick count.
func (s *Servo) Clock() uint32 { return currentTick() }

// UpdateConfig swaps in new configuration structs. Refused outside
// kStopped/kFault: fields like pole count and offset-table length have
// invariants the ISR assumes hold for the whole of a run, so a swap
// mid-torque-mode could corrupt the running estimate.
func (s *Servo) UpdateConfig(motor MotorConfig, servo ServoConfig, pos PositionConfig) error {
	if s.status.Mode != ModeStopped && s.status.Mode != ModeFault {
		return errors.New("UpdateConfig: servo must be stopped or faulted")
	}
	s.motorCfg = motor
	s.servoCfg = servo
	s.posCfg = pos
	s.controllers.PidD = NewPID(servo.PidD)
	s.controllers.PidQ = NewPID(servo.PidQ)
	s.controllers.PidPosition = NewPID(servo.PidPosition)
	s.estimator.velocity.setLength(servo.VelocityFilterLength)
	s.dictionary.RegisterMotor(&s.motorCfg)
	s.dictionary.RegisterServo(&s.servoCfg)
	s.dictionary.RegisterServoPosition(&s.posCfg)
	return nil
}

// Identify returns the zlib-compressed listing of the currently
// registered motor/servo/position configuration, for a host tool to
// fetch over the telemetry link without the wire protocol having to
// carry every individual field.
func (s *Servo) Identify() ([]byte, error) {
	return s.dictionary.Compressed()
}

// Tick runs one full ISR pass: sample, estimate, decide mode, run the
// selected control law, and emit PWM. It is the only method that may
// run concurrently with Command/PollMillisecond/UpdateConfig from
// another context; all of its own state is touched only here.
func (s *Servo) Tick() {
	advanceTick(currentTick() + 1)

	cmd := s.commands.load()

	res, err := s.sampler.sample(MustADC(), s.sensor, s.status.RawEncoder, s.estimator.havePrev, s.rateHz)
	if err != nil {
		s.enterFault(FaultPwmCycleOverrun)
		s.emitZeroOutput()
		return
	}

	s.estimator.update(res.RawEncoder, s.encoderValid)
	if !IsUnset(cmd.RezeroPosition) {
		s.estimator.rezero(cmd.RezeroPosition, s.motorCfg.UnwrappedScale)
	}
	s.status.RawEncoder = res.RawEncoder
	s.status.UnwrappedRaw = s.estimator.unwrappedRaw
	s.status.UnwrappedScaled = s.estimator.scaledPosition(s.motorCfg.UnwrappedScale)
	s.status.VelocityUnitsPerS = s.estimator.velocity.unitsPerSecond(s.motorCfg.UnwrappedScale, s.rateHz)

	encoderFault := s.encoderValid && res.EncoderFault

	theta := electricalTheta(res.RawEncoder, s.motorCfg)
	sinTheta, cosTheta := float32(math.Sin(float64(theta))), float32(math.Cos(float64(theta)))
	s.status.ElectricalTheta = theta
	s.status.SinTheta, s.status.CosTheta = sinTheta, cosTheta

	s.status.RawADC = res.RawPhase
	phaseA := phaseCurrentsA(res.RawPhase, s.status.ADCOffset, s.servoCfg.ShuntResistanceOhm, s.servoCfg.IGain)
	s.status.PhaseCurrentA = phaseA
	idA, iqA := clarkePark(phaseA, sinTheta, cosTheta)
	s.status.IdA, s.status.IqA = idA, iqA
	if s.status.Mode.ProducesTorque() && s.motorCfg.UnwrappedScale != 0 {
		s.status.TorqueNm = currentToTorque(iqA, s.motorCfg, KtFudge, s.servoCfg.RotationCurrentCutoffA) / s.motorCfg.UnwrappedScale
	} else {
		s.status.TorqueNm = 0
	}

	if res.TempIsMotor {
		s.status.MotorTemperatureC = thermistorLookupC(res.RawTemp, s.servoCfg.ThermistorTableC)
	} else {
		s.status.FetTemperatureC = thermistorLookupC(res.RawTemp, s.servoCfg.ThermistorTableC)
	}
	busV := float32(res.RawBus) * s.servoCfg.VScale
	s.status.BusVoltage = busV
	s.status.FiltBusVoltage, s.status.Filt1msVoltage = s.sampler.updateBusVoltageFilters(busV, s.rateHz)

	// The watchdog counts down the actively published command's own
	// timeout_s in place (the same through-the-pointer mutation
	// consumeOneShot uses below), so a later command that sets a fresh
	// timeout_s always starts its own countdown from scratch.
	remaining, expired := advanceTimeout(cmd.TimeoutS, s.rateHz)
	cmd.TimeoutS = remaining
	s.status.TimeoutRemainingS = remaining

	needsDQ := cmd.Mode == ModeVoltageDq || cmd.Mode == ModeCurrent || cmd.Mode.NeedsCurrentPID()
	faultCode := evaluateFaults(s.status.Mode, s.driver.Fault(), busV, s.servoCfg.MaxVoltage,
		s.status.FetTemperatureC, s.servoCfg.FaultTemperatureC, encoderFault, res.Overrun,
		needsDQ, s.motorCfg.Poles != 0)

	prevMode := s.status.Mode
	if faultCode != FaultSuccess {
		s.enterFault(faultCode)
	} else {
		outsideLimit := s.startOutsideLimit(cmd.Mode)
		calibDone, calibOK := false, false
		if prevMode == ModeCalibrating {
			calibDone, calibOK, _ = s.stepCalibration(res.RawPhase)
		}
		next, transitionFault := nextMode(prevMode, cmd.Mode, calibDone, calibOK, outsideLimit)
		if transitionFault != FaultSuccess {
			s.enterFault(transitionFault)
		} else {
			s.status.Mode = next
		}
		if expired && (prevMode == ModePosition || prevMode == ModeStayWithinBounds) {
			s.status.Mode = ModePositionTimeout
		}
	}

	if prevMode != s.status.Mode && !s.status.Mode.NeedsPositionPID() {
		s.controllers.ResetControlPosition()
	}
	if s.status.Mode == ModeStopped {
		s.status.Fault = FaultSuccess
	}

	s.runControl(cmd)
	consumeOneShot(cmd)

	s.lastCommand = *cmd
	if s.telemetry != nil {
		s.telemetry.Observe(s.status, s.control, s.lastCommand)
	}
	if dac := DAC(); dac != nil {
		_ = dac.Write(dacCodeFromCurrent(s.status.IdA))
	}
}

// stepCalibration folds this tick's raw currents into the calibration
// accumulator and, on completion, writes the resulting offsets.
func (s *Servo) stepCalibration(raw [3]ADCValue) (done, ok bool, offsets [3]ADCValue) {
	done, ok, offsets = s.calib.accumulate(raw)
	if done && ok {
		s.status.ADCOffset = offsets
		s.status.CalibrationProgress = kCalibrateCount
	} else {
		s.status.CalibrationProgress = s.calib.count
	}
	return done, ok, offsets
}

// startOutsideLimit reports whether entering commandedMode right now
// would start outside the configured position limits (spec.md §4.3's
// kStartOutsideLimit gate).
func (s *Servo) startOutsideLimit(commandedMode Mode) bool {
	if commandedMode != ModePosition && commandedMode != ModeStayWithinBounds {
		return false
	}
	u := s.status.UnwrappedScaled
	if !IsUnset(s.posCfg.PositionMin) && u < s.posCfg.PositionMin {
		return true
	}
	if !IsUnset(s.posCfg.PositionMax) && u > s.posCfg.PositionMax {
		return true
	}
	return false
}

// enterFault transitions to ModeFault, records the first triggering
// fault code, and is a no-op if already faulted (fault is sticky).
func (s *Servo) enterFault(code FaultCode) {
	if s.status.Mode == ModeFault {
		return
	}
	s.status.Mode = ModeFault
	s.status.Fault = code
}

// emitZeroOutput disables power and zeroes every PWM channel, used when
// the Sampler itself failed to complete a conversion.
func (s *Servo) emitZeroOutput() {
	s.control = Control{}
	MustPWM().SetPower(false)
	for phase := PWMPhaseU; phase <= PWMPhaseW; phase++ {
		_ = MustPWM().SetDutyCycle(phase, 0)
	}
}

// runControl dispatches to the control law selected by the current
// mode and writes Control/PWM, per spec.md §4.4.
func (s *Servo) runControl(cmd *CommandData) {
	kMinPwm := currentSampleMinPwm(s.rateHz)
	const kMaxPwm = 1.0

	s.control = Control{}

	switch s.status.Mode {
	case ModeStopped, ModeFault, ModeEnabling, ModeCalibrating, ModeCalibrationComplete:
		s.writeDuty([3]float32{0.5, 0.5, 0.5}, false)
		s.control = Control{}
		return

	case ModePwm:
		duty := pwmOpenLoop(cmd.PWM, kMinPwm, kMaxPwm)
		s.writeDuty(duty, true)
		s.control = Control{}

	case ModeVoltage:
		duty := voltageOpenLoop(cmd.Voltage, s.status.FiltBusVoltage, s.servoCfg.PwmMin, s.servoCfg.PwmMinBlend, kMinPwm, kMaxPwm)
		s.writeDuty(duty, true)
		s.control = Control{PhaseVoltage: cmd.Voltage}

	case ModeVoltageFoc:
		duty := voltageFoc(cmd.ThetaRad, cmd.VoltageFocV, s.servoCfg.MaxVoltage, s.status.FiltBusVoltage,
			s.servoCfg.PwmMin, s.servoCfg.PwmMinBlend, kMinPwm, kMaxPwm)
		s.writeDuty(duty, true)
		s.control = Control{QVoltage: cmd.VoltageFocV}

	case ModeVoltageDq:
		dV := clampVoltage(cmd.DVoltage, s.status.FiltBusVoltage, kMinPwm)
		qV := clampVoltage(cmd.QVoltage, s.status.FiltBusVoltage, kMinPwm)
		duty := voltageDq(dV, qV, s.servoCfg.MaxVoltage, s.status.SinTheta, s.status.CosTheta, s.status.FiltBusVoltage,
			s.servoCfg.PwmMin, s.servoCfg.PwmMinBlend, kMinPwm, kMaxPwm)
		s.writeDuty(duty, true)
		s.control = Control{DVoltage: dV, QVoltage: qV}

	case ModeCurrent:
		s.runCurrent(cmd.DCurrentA, cmd.QCurrentA, kMinPwm, kMaxPwm)

	case ModePosition, ModePositionTimeout, ModeZeroVelocity:
		s.runPosition(cmd, kMinPwm, kMaxPwm)

	case ModeStayWithinBounds:
		s.runStayWithinBounds(cmd, kMinPwm, kMaxPwm)
	}
}

// runCurrent is the kCurrent control law: PID-produced d/q voltages fed
// through kVoltageDq.
func (s *Servo) runCurrent(dSetA, qSetA, kMinPwm, kMaxPwm float32) {
	dV, qV := s.controllers.current(dSetA, qSetA, s.status.IdA, s.status.IqA, s.status.VelocityUnitsPerS, s.rateHz,
		s.status.UnwrappedScaled, s.posCfg.PositionMin, s.posCfg.PositionMax, s.posCfg.PositionDerateWidth,
		s.status.FetTemperatureC, s.motorCfg, s.servoCfg)
	dV = clampVoltage(dV, s.status.FiltBusVoltage, kMinPwm)
	qV = clampVoltage(qV, s.status.FiltBusVoltage, kMinPwm)
	duty := voltageDq(dV, qV, s.servoCfg.MaxVoltage, s.status.SinTheta, s.status.CosTheta, s.status.FiltBusVoltage,
		s.servoCfg.PwmMin, s.servoCfg.PwmMinBlend, kMinPwm, kMaxPwm)
	s.writeDuty(duty, true)
	s.control.DCurrentA, s.control.QCurrentA = dSetA, qSetA
	s.control.DVoltage, s.control.QVoltage = dV, qV
	s.status.PidD = s.controllers.PidD.State()
	s.status.PidQ = s.controllers.PidQ.State()
}

// runPosition is the shared kPosition/kPositionTimeout/kZeroVelocity
// control law of spec.md §4.4.
func (s *Servo) runPosition(cmd *CommandData, kMinPwm, kMaxPwm float32) {
	kpScale, kdScale := cmd.KpScale, cmd.KdScale
	velocityCmd := cmd.Velocity
	feedforwardNm := cmd.FeedforwardNm
	maxTorqueNm := cmd.MaxTorqueNm
	newPosition := cmd.Position
	if !IsUnset(cmd.SetPosition) {
		// SetPosition is a one-shot hard override of control_position,
		// distinct from the continuously-tracked Position field.
		newPosition = cmd.SetPosition
	}

	if s.status.Mode == ModeZeroVelocity || s.status.Mode == ModePositionTimeout {
		kpScale, kdScale = 0, 1
		velocityCmd = 0
		feedforwardNm = 0
		maxTorqueNm = s.servoCfg.TimeoutMaxTorqueNm
		newPosition = Unset()
	}

	velocityCmd = s.controllers.advancePosition(newPosition, velocityCmd, s.posCfg.PositionMin, s.posCfg.PositionMax,
		cmd.StopPosition, s.status.UnwrappedScaled, s.rateHz)

	torqueNm := s.controllers.positionTorqueNm(s.status.UnwrappedScaled, s.status.VelocityUnitsPerS, velocityCmd,
		s.rateHz, kpScale, kdScale, feedforwardNm, maxTorqueNm, s.servoCfg.VelocityThresholdUnitsPerS)

	qSetA := torqueToCurrent(torqueNm*s.motorCfg.UnwrappedScale, s.motorCfg, KtFudge, s.servoCfg.RotationCurrentCutoffA)
	dSetA := fluxBrakeCurrentA(s.status.Filt1msVoltage, s.servoCfg.FluxBrakeMinVoltage, s.servoCfg.FluxBrakeResistanceOhm)

	s.control.TorqueNm = torqueNm
	s.status.PidPosition = s.controllers.PidPosition.State()
	s.runCurrent(dSetA, qSetA, kMinPwm, kMaxPwm)
}

// runStayWithinBounds is the kStayWithinBounds control law: only the
// bound that's been overshot becomes a target; inside the bounds the
// position PID is held cleared and only feedforward torque applies.
func (s *Servo) runStayWithinBounds(cmd *CommandData, kMinPwm, kMaxPwm float32) {
	target, active := stayWithinBoundsTarget(s.status.UnwrappedScaled, cmd.BoundsMin, cmd.BoundsMax)

	var torqueNm float32
	if active {
		velocityCmd := s.controllers.advancePosition(target, 0, Unset(), Unset(), Unset(), s.status.UnwrappedScaled, s.rateHz)
		torqueNm = s.controllers.positionTorqueNm(s.status.UnwrappedScaled, s.status.VelocityUnitsPerS, velocityCmd,
			s.rateHz, cmd.KpScale, cmd.KdScale, cmd.FeedforwardNm, cmd.MaxTorqueNm, s.servoCfg.VelocityThresholdUnitsPerS)
	} else {
		s.controllers.PidPosition.Reset()
		s.controllers.ResetControlPosition()
		torqueNm = clampAbs(cmd.FeedforwardNm, cmd.MaxTorqueNm)
	}

	qSetA := torqueToCurrent(torqueNm*s.motorCfg.UnwrappedScale, s.motorCfg, KtFudge, s.servoCfg.RotationCurrentCutoffA)
	dSetA := fluxBrakeCurrentA(s.status.Filt1msVoltage, s.servoCfg.FluxBrakeMinVoltage, s.servoCfg.FluxBrakeResistanceOhm)

	s.control.TorqueNm = torqueNm
	s.status.PidPosition = s.controllers.PidPosition.State()
	s.runCurrent(dSetA, qSetA, kMinPwm, kMaxPwm)
}

// writeDuty writes three duty fractions to the PWM driver with the
// documented output2<->output3 swap already applied by the caller, in
// engineering (fraction) units, converting to the driver's integer
// scale and enabling power if requested.
func (s *Servo) writeDuty(duty [3]float32, power bool) {
	maxValue := MustPWM().GetMaxValue()
	var counts [3]PWMValue
	for i, d := range duty {
		counts[i] = PWMValue(d * float32(maxValue))
	}
	for phase := PWMPhaseU; phase <= PWMPhaseW; phase++ {
		_ = MustPWM().SetDutyCycle(phase, counts[phase])
	}
	s.control.PhasePWM = counts
	_ = MustPWM().SetPower(power)
	s.driver.Power(power)
}

// kCurrentSampleTimeSeconds is the phase-current ADC's conversion time,
// a property of the peripheral rather than something computed from the
// control rate.
const kCurrentSampleTimeSeconds = 2e-6

// currentSampleMinPwm returns kMinPwm = currentSampleTime * 2 * fPwm:
// the minimum duty headroom the Sampler needs to finish a current-ADC
// conversion before the high side turns back on (spec.md §3).
func currentSampleMinPwm(pwmRateHz float32) float32 {
	return kCurrentSampleTimeSeconds * 2 * pwmRateHz
}

// dacCodeFromCurrent maps a d-axis current reading onto the debug DAC's
// code range, centered at mid-scale.
func dacCodeFromCurrent(idA float32) uint16 {
	const midScale = 2048
	const countsPerAmp = 200
	code := float32(midScale) + idA*countsPerAmp
	if code < 0 {
		code = 0
	}
	if code > 4095 {
		code = 4095
	}
	return uint16(code)
}

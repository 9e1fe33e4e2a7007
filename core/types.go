package core

import "fmt"

// Mode is the servo's operating mode (spec.md §4.3).
type Mode uint8

const (
	ModeStopped Mode = iota
	ModeFault
	ModeEnabling
	ModeCalibrating
	ModeCalibrationComplete
	ModePwm
	ModeVoltage
	ModeVoltageFoc
	ModeVoltageDq
	ModeCurrent
	ModePosition
	ModePositionTimeout
	ModeZeroVelocity
	ModeStayWithinBounds
)

func (m Mode) String() string {
	switch m {
	case ModeStopped:
		return "stopped"
	case ModeFault:
		return "fault"
	case ModeEnabling:
		return "enabling"
	case ModeCalibrating:
		return "calibrating"
	case ModeCalibrationComplete:
		return "calibration_complete"
	case ModePwm:
		return "pwm"
	case ModeVoltage:
		return "voltage"
	case ModeVoltageFoc:
		return "voltage_foc"
	case ModeVoltageDq:
		return "voltage_dq"
	case ModeCurrent:
		return "current"
	case ModePosition:
		return "position"
	case ModePositionTimeout:
		return "position_timeout"
	case ModeZeroVelocity:
		return "zero_velocity"
	case ModeStayWithinBounds:
		return "stay_within_bounds"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// IsTorqueMode reports whether m is one of the torque-producing modes
// that may only be entered through the calibration gate.
func (m Mode) IsTorqueMode() bool {
	switch m {
	case ModePwm, ModeVoltage, ModeVoltageFoc, ModeVoltageDq, ModeCurrent,
		ModePosition, ModeZeroVelocity, ModeStayWithinBounds:
		return true
	default:
		return false
	}
}

// ProducesTorque reports whether m is a mode in which the drive is
// actually producing (or attempting to produce) torque, the same set
// IsTorqueMode covers plus ModePositionTimeout, which still runs the
// position control law holding position rather than outputting zero.
func (m Mode) ProducesTorque() bool {
	return m.IsTorqueMode() || m == ModePositionTimeout
}

// NeedsCurrentPID reports whether m drives the d/q current PIDs.
func (m Mode) NeedsCurrentPID() bool {
	switch m {
	case ModePosition, ModePositionTimeout, ModeStayWithinBounds, ModeZeroVelocity, ModeCurrent:
		return true
	default:
		return false
	}
}

// NeedsPositionPID reports whether m drives the position PID.
func (m Mode) NeedsPositionPID() bool {
	switch m {
	case ModePosition, ModePositionTimeout, ModeStayWithinBounds, ModeZeroVelocity:
		return true
	default:
		return false
	}
}

// FaultCode is a stable identifier for why the servo entered ModeFault
// (spec.md §6).
type FaultCode uint8

const (
	FaultSuccess FaultCode = iota
	FaultPwmCycleOverrun
	FaultEncoderFault
	FaultCalibrationFault
	FaultMotorDriverFault
	FaultOverVoltage
	FaultOverTemperature
	FaultStartOutsideLimit
	FaultMotorNotConfigured
)

func (f FaultCode) String() string {
	switch f {
	case FaultSuccess:
		return "success"
	case FaultPwmCycleOverrun:
		return "pwm_cycle_overrun"
	case FaultEncoderFault:
		return "encoder_fault"
	case FaultCalibrationFault:
		return "calibration_fault"
	case FaultMotorDriverFault:
		return "motor_driver_fault"
	case FaultOverVoltage:
		return "over_voltage"
	case FaultOverTemperature:
		return "over_temperature"
	case FaultStartOutsideLimit:
		return "start_outside_limit"
	case FaultMotorNotConfigured:
		return "motor_not_configured"
	default:
		return fmt.Sprintf("fault(%d)", uint8(f))
	}
}

package core

import "math"

// MaxOffsetTableLen bounds MotorConfig.OffsetTable so it can live in a
// compile-time array (spec.md §9 "no allocation").
const MaxOffsetTableLen = 64

// MaxVelocityWindow bounds ServoConfig.VelocityFilterLength for the
// same reason.
const MaxVelocityWindow = 256

// unset is the sentinel for "no value" on optional float32 fields
// throughout the data model (position limits, stop_position, bounds,
// command.Position), matching spec.md's own use of NaN for the
// control_position reentry case.
var unset = float32(math.NaN())

// Unset returns the sentinel used for optional float fields.
func Unset() float32 { return unset }

// IsUnset reports whether v is the "no value" sentinel.
func IsUnset(v float32) bool { return v != v }

// MotorConfig is configured, read-only-in-ISR per spec.md §3.
type MotorConfig struct {
	Poles          uint8
	ResistanceOhm  float32
	VPerHz         float32 // back-EMF constant
	UnwrappedScale float32
	Invert         bool
	PositionOffset int32

	// OffsetTable holds electrical-angle offsets, one per sector; only
	// the first OffsetTableLen entries are meaningful. OffsetTableLen
	// must be a power-of-two divisor of 65536.
	OffsetTable    [MaxOffsetTableLen]float32
	OffsetTableLen uint16
}

// KtFudge is the empirical torque-constant correction factor from
// spec.md §4.4/§9. Preserved as a named constant rather than folded
// into the formula, per the source's own note that it is empirical and
// should stay adjustable.
const KtFudge = 0.78

// PIDParams parametrizes one instance of the generic PID in pid.go.
type PIDParams struct {
	Kp float32
	Ki float32
	Kd float32
	// IntegralMax clamps the integrator's magnitude (anti-windup).
	IntegralMax float32
	// OutputMax clamps the PID's output magnitude; zero means unclamped.
	OutputMax float32
}

// ServoConfig is the configured, read-only-in-ISR servo tuning data of
// spec.md §3.
type ServoConfig struct {
	PwmMin      float32 // minimum nonzero duty offset
	PwmMinBlend float32 // dead-zone blend width

	IGain              float32 // current-sense amplifier gain
	ShuntResistanceOhm float32 // current-sense shunt resistance
	VScale             float32 // bus-voltage ADC scale (volts per count)

	MaxVoltage       float32
	FaultTemperatureC   float32
	DerateTemperatureC  float32
	MaxCurrentA      float32
	DerateCurrentA   float32

	PidD        PIDParams
	PidQ        PIDParams
	PidPosition PIDParams

	VelocityFilterLength int // 1..MaxVelocityWindow
	VelocityThresholdUnitsPerS float32

	FluxBrakeMinVoltage    float32
	FluxBrakeResistanceOhm float32

	DefaultTimeoutS float32

	// TimeoutMaxTorqueNm is the torque ceiling used by ModeZeroVelocity
	// and ModePositionTimeout (spec.md §4.4).
	TimeoutMaxTorqueNm float32

	// RotationCurrentCutoffA is the operating-point cutoff current for
	// the torque model's cubic rotation-scaling term.
	RotationCurrentCutoffA float32

	// ADCSampleCycles selects the integration time per ADC channel.
	ADCSampleCycles [5]uint32

	// ThermistorTableC is the 32-entry lookup table of degrees Celsius
	// indexed by raw ADC count, per spec.md §4.1.
	ThermistorTableC [32]float32
}

// PositionConfig is spec.md §3's position limit configuration.
type PositionConfig struct {
	PositionMin        float32 // Unset() if no lower limit
	PositionMax        float32 // Unset() if no upper limit
	PositionDerateWidth float32
}

// DefaultServoConfig returns zero-valued-but-safe defaults: every
// torque/voltage ceiling is zero, so a freshly constructed Servo that
// skips UpdateConfig cannot drive the motor at all. Callers are
// expected to call UpdateConfig with real tuning data before leaving
// ModeStopped.
func DefaultServoConfig() ServoConfig {
	return ServoConfig{
		PwmMin:                     0.005,
		PwmMinBlend:                0.01,
		IGain:                      1.0,
		ShuntResistanceOhm:         0.001,
		VScale:                     1.0,
		VelocityFilterLength:       32,
		DefaultTimeoutS:            0.5,
		RotationCurrentCutoffA:     1.0,
		ADCSampleCycles:            [5]uint32{16, 16, 16, 16, 16},
	}
}

// DefaultPositionConfig returns a config with no position limits.
func DefaultPositionConfig() PositionConfig {
	return PositionConfig{
		PositionMin: Unset(),
		PositionMax: Unset(),
	}
}

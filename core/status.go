package core

// Status is ISR-owned and read-only elsewhere (spec.md §3). Main reads
// individual fields with relaxed/volatile semantics — no composite
// atomicity is needed because telemetry consumers are idempotent
// (spec.md §9).
type Status struct {
	Mode  Mode
	Fault FaultCode

	RawADC    [3]ADCValue // phase A/B/C raw current samples
	ADCOffset [3]ADCValue // calibrated mid-scale offsets

	PhaseCurrentA [3]float32 // engineering-unit phase currents

	BusVoltage     float32
	FiltBusVoltage float32 // tau = 0.5s EMA
	Filt1msVoltage float32 // tau = 1ms EMA

	IdA, IqA   float32
	TorqueNm   float32

	SinTheta, CosTheta float32
	RawEncoder         uint16
	ElectricalTheta    float32

	UnwrappedRaw   int32
	UnwrappedScaled float32
	VelocityUnitsPerS float32

	FetTemperatureC   float32
	MotorTemperatureC float32

	CalibrationProgress int // 0..kCalibrateCount while ModeCalibrating

	PidD        PIDState
	PidQ        PIDState
	PidPosition PIDState

	TimeoutRemainingS float32

	Tick uint32
}

// Control is ISR-owned and reset at the start of each cycle (spec.md §3).
type Control struct {
	DVoltage, QVoltage float32
	DCurrentA, QCurrentA float32

	PhaseVoltage [3]float32
	PhasePWM     [3]PWMValue

	TorqueNm float32
}

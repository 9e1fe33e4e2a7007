package core

// PositionSensor is the absolute magnetic encoder collaborator. The
// Sampler calls StartSample between the current-ADC completion and the
// temperature-ADC completion so the SPI transaction overlaps other
// work, then FinishSample once the rest of the tick's ADC work is done.
type PositionSensor interface {
	StartSample()
	FinishSample() uint16
}

// MotorDriver is the external six-switch inverter gate-driver
// collaborator. Enable and Power are deliberately split: Enable is the
// slow, non-RT gate-driver enable line (written only from main, see
// PollMillisecond); Power is the ISR's own fast power gate, asserted
// and deasserted every tick by the Mode Machine.
type MotorDriver interface {
	Enable(on bool)
	Power(on bool)
	Fault() bool
}

// PersistentConfig is the host-side configuration store. It registers
// the three structs named in spec.md §6 and is told about updates
// through UpdateConfig. The real implementation lives outside this
// module (flash storage, a host tool, ...); core/dictionary.go
// provides the registration surface this interface is defined against.
type PersistentConfig interface {
	RegisterMotor(cfg *MotorConfig)
	RegisterServo(cfg *ServoConfig)
	RegisterServoPosition(cfg *PositionConfig)
	UpdateConfig(fn func() error) error
}

// TelemetryManager observes Status, Control, and the last-applied
// command without taking any lock — see Servo.Status/Servo.Control's
// relaxed reads of the plain structs in status.go.
type TelemetryManager interface {
	Observe(status Status, control Control, lastCommand CommandData)
}

// MillisecondTimer is the coarse, non-RT busy-wait timebase a target
// provides. Servo holds no MillisecondTimer; Start does not wait on one.
type MillisecondTimer interface {
	WaitMicroseconds(n uint32)
}

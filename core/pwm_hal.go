package core

// PWMPhase identifies one of the three inverter legs. Duty values are
// written in this order, but see estimator.go / controllers.go for the
// legacy phase-2/phase-3 swap applied before the write.
type PWMPhase uint8

const (
	PWMPhaseU PWMPhase = iota
	PWMPhaseV
	PWMPhaseW
)

// PWMValue is a duty-cycle count in [0, GetMaxValue()], center-aligned.
type PWMValue uint32

// PWMDriver is the abstract three-phase center-aligned PWM interface
// the Controllers write to every tick.
type PWMDriver interface {
	// ConfigureThreePhase arms the timer in center-aligned mode and
	// returns the actual cycle length in ticks (may be adjusted for
	// hardware constraints).
	ConfigureThreePhase(cycleTicks uint32) (uint32, error)

	// SetDutyCycle sets one phase's duty cycle for the next PWM period.
	SetDutyCycle(phase PWMPhase, value PWMValue) error

	// GetMaxValue returns the duty value that represents 100%.
	GetMaxValue() uint32

	// SetPower enables or disables the inverter output stage (the ISR's
	// own power line, distinct from the external MotorDriver.Enable).
	SetPower(enabled bool) error
}

var pwmDriver PWMDriver

// SetPWMDriver is called by target-specific code to register its driver.
func SetPWMDriver(d PWMDriver) {
	pwmDriver = d
}

// MustPWM returns the configured driver or panics if missing.
func MustPWM() PWMDriver {
	if pwmDriver == nil {
		panic("PWM driver not configured")
	}
	return pwmDriver
}

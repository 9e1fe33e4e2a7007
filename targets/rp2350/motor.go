//go:build rp2040 || rp2350

package main

import "bldcservo/core"

// Gate-driver control lines. EnablePin is the slow non-RT enable the
// gate driver IC needs asserted before any PWM reaches the switches;
// FaultPin is its open-drain fault output, pulled low on a detected
// shoot-through/overcurrent/thermal event.
const (
	motorEnablePin core.GPIOPin = 19
	motorFaultPin  core.GPIOPin = 20
)

// GateDriver implements core.MotorDriver against a discrete six-switch
// gate-driver IC (e.g. DRV8323-class): Enable gates the driver IC
// itself, Power is the ISR's own PWM output-stage kill switch (handled
// entirely in core/servo.go via the PWMDriver), and Fault reads the
// driver's fault line.
type GateDriver struct {
	gpio core.GPIODriver
}

// NewGateDriver configures the enable and fault lines.
func NewGateDriver(gpio core.GPIODriver) (*GateDriver, error) {
	if err := gpio.ConfigureOutput(motorEnablePin); err != nil {
		return nil, err
	}
	if err := gpio.ConfigureInputPullUp(motorFaultPin); err != nil {
		return nil, err
	}
	return &GateDriver{gpio: gpio}, nil
}

func (d *GateDriver) Enable(on bool) {
	d.gpio.SetPin(motorEnablePin, on)
}

// Power is a no-op here: the actual PWM output stage is gated by
// RP2040PWMDriver.SetPower, which core/servo.go already calls every
// mode transition. A separate discrete power-enable line isn't wired
// on this target.
func (d *GateDriver) Power(on bool) {}

func (d *GateDriver) Fault() bool {
	// Open-drain, active low.
	return !d.gpio.ReadPin(motorFaultPin)
}

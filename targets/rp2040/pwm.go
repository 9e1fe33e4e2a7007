//go:build rp2040 || rp2350

package main

import (
	"bldcservo/core"
	"machine"
)

// rp2040PWMMaxValue is the duty resolution reported to core.Controllers;
// the actual hardware top is computed from the requested cycle length
// at Configure time and scaled to this range on every write.
const rp2040PWMMaxValue = 1 << 14

// rp2040PhasePins assigns the three inverter legs to RP2040 GPIO pins.
// Each pair of adjacent pins (2N, 2N+1) must share a PWM slice so all
// three legs can be phase-locked to the same top/counter.
var rp2040PhasePins = [3]machine.Pin{
	machine.GPIO16, // U
	machine.GPIO17, // V
	machine.GPIO18, // W
}

// RP2040PWMDriver implements core.PWMDriver using three of RP2040's
// hardware PWM slices run in center-aligned (phase-correct) mode.
type RP2040PWMDriver struct {
	top      uint32
	channels [3]uint8
	powered  bool
}

// NewRP2040PWMDriver creates a new RP2040 three-phase PWM driver.
func NewRP2040PWMDriver() *RP2040PWMDriver {
	return &RP2040PWMDriver{}
}

// ConfigureThreePhase arms all three phase PWM slices in phase-correct
// mode with the requested period, and returns the achieved top value
// as the hardware's notion of a full cycle.
func (d *RP2040PWMDriver) ConfigureThreePhase(cycleTicks uint32) (uint32, error) {
	// cycleTicks of 0 means "pick a sensible default" (40kHz center-aligned
	// from the RP2040's 125MHz system clock): top = sysclk / (2 * fPwm).
	period := cycleTicks
	if period == 0 {
		const sysClockHz = 125_000_000
		const defaultPwmHz = 40_000
		period = sysClockHz / (2 * defaultPwmHz)
	}

	for i, pin := range rp2040PhasePins {
		pwm := rp2040PWMForPin(pin)
		if err := pwm.Configure(machine.PWMConfig{Period: uint64(period)}); err != nil {
			return 0, err
		}
		ch, err := pwm.Channel(pin)
		if err != nil {
			return 0, err
		}
		d.channels[i] = ch
	}
	d.top = rp2040PWMForPin(rp2040PhasePins[0]).Top()
	return d.top, nil
}

// SetDutyCycle writes one phase's duty, scaling from the
// [0, rp2040PWMMaxValue] fraction Controllers works in to the
// hardware's actual top value.
func (d *RP2040PWMDriver) SetDutyCycle(phase core.PWMPhase, value core.PWMValue) error {
	if int(phase) >= len(rp2040PhasePins) {
		return nil
	}
	pwm := rp2040PWMForPin(rp2040PhasePins[phase])
	duty := (uint32(value) * d.top) / rp2040PWMMaxValue
	pwm.Set(d.channels[phase], duty)
	return nil
}

func (d *RP2040PWMDriver) GetMaxValue() uint32 {
	return rp2040PWMMaxValue
}

// SetPower gates the inverter's PWM output: disabled drives every leg
// to zero duty rather than physically disabling the hardware slice, so
// re-enabling resumes instantly without a reconfigure.
func (d *RP2040PWMDriver) SetPower(enabled bool) error {
	d.powered = enabled
	if !enabled {
		for i := range rp2040PhasePins {
			pwm := rp2040PWMForPin(rp2040PhasePins[i])
			pwm.Set(d.channels[i], 0)
		}
	}
	return nil
}

// rp2040PWMForPin maps a GPIO pin to its PWM slice.
// RP2040: slice = (pin >> 1) & 0x7.
func rp2040PWMForPin(pin machine.Pin) *machine.PWM {
	slice := (uint8(pin) >> 1) & 0x7
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

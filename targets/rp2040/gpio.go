//go:build rp2040 || rp2350

package main

import (
	"bldcservo/core"
	"machine"
)

// RPGPIODriver implements core.GPIODriver using TinyGo's machine.Pin.
type RPGPIODriver struct {
	configuredPins map[core.GPIOPin]machine.Pin
}

// NewRPGPIODriver creates a new GPIO driver.
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}
	machinePin := d.pinNumberToMachinePin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configuredPins[pin] = machinePin
	return nil
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}
	machinePin := d.pinNumberToMachinePin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	d.configuredPins[pin] = machinePin
	return nil
}

func (d *RPGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}
	machinePin := d.pinNumberToMachinePin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	d.configuredPins[pin] = machinePin
	return nil
}

func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		machinePin = d.configuredPins[pin]
	}
	machinePin.Set(value)
	return nil
}

func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		return false, nil
	}
	return machinePin.Get(), nil
}

func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	value, _ := d.GetPin(pin)
	return value
}

// pinNumberToMachinePin maps a core.GPIOPin directly to the matching
// RP2040/RP2350 GPIO number.
func (d *RPGPIODriver) pinNumberToMachinePin(pin core.GPIOPin) machine.Pin {
	return machine.Pin(pin)
}

//go:build rp2350

package main

import (
	"bldcservo/core"
	"errors"
	"machine"
	"sync"
	"time"
)

// SoftwareSPIDriver implements core.SPIDriver by bit-banging GPIO pins
// instead of a hardware PL022 peripheral. It exists as a fallback bus
// for boards where the encoder's SCK/MOSI/MISO pins don't land on one
// of RP2350's hardware SPI controllers, or where both hardware buses
// are already claimed by something else.
type SoftwareSPIDriver struct {
	mu        sync.Mutex
	instances map[core.SPIBusID]*softwareSPIInstance
}

type softwareSPIInstance struct {
	sclk, mosi, miso machine.Pin
	halfPeriod       time.Duration
	cpol, cpha       bool
}

// softwareSPIBuses maps bus IDs to bit-banged pin assignments, kept
// separate from rp2040SPIBuses' hardware-controller table.
var softwareSPIBuses = map[core.SPIBusID]struct {
	sclk, mosi, miso machine.Pin
}{
	0: {sclk: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0},
}

func NewSoftwareSPIDriver() *SoftwareSPIDriver {
	return &SoftwareSPIDriver{instances: make(map[core.SPIBusID]*softwareSPIInstance)}
}

func (d *SoftwareSPIDriver) ConfigureBus(config core.SPIConfig) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pins, ok := softwareSPIBuses[config.BusID]
	if !ok {
		return nil, errors.New("unknown software SPI bus ID")
	}

	inst := &softwareSPIInstance{sclk: pins.sclk, mosi: pins.mosi, miso: pins.miso}

	switch config.Mode {
	case 0:
		inst.cpol, inst.cpha = false, false
	case 1:
		inst.cpol, inst.cpha = false, true
	case 2:
		inst.cpol, inst.cpha = true, false
	case 3:
		inst.cpol, inst.cpha = true, true
	default:
		return nil, errors.New("invalid SPI mode")
	}

	if config.Rate > 0 {
		inst.halfPeriod = time.Duration(500_000_000/config.Rate) * time.Nanosecond
	} else {
		inst.halfPeriod = 5 * time.Microsecond
	}

	inst.sclk.Configure(machine.PinConfig{Mode: machine.PinOutput})
	inst.mosi.Configure(machine.PinConfig{Mode: machine.PinOutput})
	inst.miso.Configure(machine.PinConfig{Mode: machine.PinInput})
	inst.sclk.Set(inst.cpol)
	inst.mosi.Low()

	d.instances[config.BusID] = inst
	return inst, nil
}

func (d *SoftwareSPIDriver) Transfer(busHandle interface{}, txData, rxData []byte) error {
	inst, ok := busHandle.(*softwareSPIInstance)
	if !ok {
		return errors.New("invalid software SPI handle")
	}
	if len(txData) != len(rxData) {
		return errors.New("tx and rx buffer lengths must match")
	}
	for i := range txData {
		rxData[i] = inst.transferByte(txData[i])
	}
	return nil
}

func (inst *softwareSPIInstance) transferByte(txByte byte) byte {
	var rxByte byte
	for bit := 7; bit >= 0; bit-- {
		if txByte&(1<<bit) != 0 {
			inst.mosi.High()
		} else {
			inst.mosi.Low()
		}

		if !inst.cpha {
			if inst.miso.Get() {
				rxByte |= 1 << bit
			}
		}

		inst.toggleClock()
		time.Sleep(inst.halfPeriod)

		if inst.cpha {
			if inst.miso.Get() {
				rxByte |= 1 << bit
			}
		}

		inst.toggleClock()
		time.Sleep(inst.halfPeriod)
	}
	return rxByte
}

func (inst *softwareSPIInstance) toggleClock() {
	if inst.sclk.Get() {
		inst.sclk.Low()
	} else {
		inst.sclk.High()
	}
}

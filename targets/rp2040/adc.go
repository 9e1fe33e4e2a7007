//go:build rp2040 || rp2350

package main

import (
	"bldcservo/core"
	"device/rp"
	"errors"
	"machine"
	"sync"
)

// RpAdcDriver implements core.ADCDriver using TinyGo's machine.ADC for
// the three phase-current channels and the bus-voltage divider, and the
// chip's internal temperature sensor as the aux temperature channel. StartSample/ReadSample are
// collapsed into a single synchronous conversion: TinyGo's ADC.Get()
// already blocks for one conversion, well inside the few-microsecond
// budget the Sampler allows.
type RpAdcDriver struct {
	mu          sync.Mutex
	channels    map[core.ADCChannelID]machine.ADC
	pins        map[core.ADCChannelID]machine.Pin
	lastValue   map[core.ADCChannelID]uint16
	lastAuxTemp uint16
}

// NewRPAdcDriver constructs the driver but does not Init() it yet.
func NewRPAdcDriver() *RpAdcDriver {
	return &RpAdcDriver{
		channels:  make(map[core.ADCChannelID]machine.ADC),
		lastValue: make(map[core.ADCChannelID]uint16),
		pins: map[core.ADCChannelID]machine.Pin{
			core.ADCPhaseA:         machine.ADC0,
			core.ADCPhaseB:         machine.ADC1,
			core.ADCPhaseC:         machine.ADC2,
			core.ADCBusVoltage:     machine.ADC3,
			core.ADCAuxTemperature: 0, // internal temperature sensor, channel 4
		},
	}
}

func (d *RpAdcDriver) Init(cfg core.ADCConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	machine.InitADC()

	for ch, pin := range d.pins {
		if ch == core.ADCAuxTemperature {
			continue // internal sensor, no machine.ADC pin to configure
		}
		adc := machine.ADC{Pin: pin}
		if err := adc.Configure(machine.ADCConfig{}); err != nil {
			return err
		}
		d.channels[ch] = adc
	}
	return nil
}

// rawInternalTemp returns the 12-bit raw ADC value from the internal
// temperature sensor, read directly off the ADC peripheral registers
// since TinyGo's machine.ADC has no channel for it.
func rawInternalTemp() uint16 {
	if rp.ADC.CS.Get()&rp.ADC_CS_EN == 0 {
		machine.InitADC()
	}
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
	const tempChannel = 4
	rp.ADC.CS.ReplaceBits(uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	return uint16(rp.ADC.RESULT.Get())
}

// StartSample begins a conversion on ch. RP2040's ADC has no
// asynchronous start/poll exposed through TinyGo's machine package, so
// this performs the conversion immediately; ReadSample just returns
// the cached result.
func (d *RpAdcDriver) StartSample(ch core.ADCChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch == core.ADCAuxTemperature {
		d.lastAuxTemp = rawInternalTemp()
		return nil
	}
	adc, ok := d.channels[ch]
	if !ok {
		return errors.New("unconfigured ADC channel")
	}
	d.lastValue[ch] = adc.Get()
	return nil
}

func (d *RpAdcDriver) ReadSample(ch core.ADCChannelID) (core.ADCValue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ch == core.ADCAuxTemperature {
		return core.ADCValue(d.lastAuxTemp), nil
	}
	v, ok := d.lastValue[ch]
	if !ok {
		return 0, errors.New("ReadSample before StartSample")
	}
	return core.ADCValue(v), nil
}

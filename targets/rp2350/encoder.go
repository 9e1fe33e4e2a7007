//go:build rp2040 || rp2350

package main

import "bldcservo/core"

// encoderSPIBus is the SPI bus index (see rp2040SPIBuses) the absolute
// magnetic encoder is wired to.
const encoderSPIBus core.SPIBusID = 0

// SPIEncoderSensor implements core.PositionSensor over a SPI-attached
// absolute angle encoder that returns a 16-bit angle on a two-byte
// read, MSB first (the common shape for AS5047/MA702-class chips).
// StartSample/FinishSample are split so the Sampler can overlap the
// SPI transaction with the rest of a tick's ADC work; RP2040's
// blocking machine.SPI.Tx means the "overlap" here is really "do it as
// early in the tick as possible", not true asynchrony.
type SPIEncoderSensor struct {
	spi     core.SPIDriver
	bus     interface{}
	lastRaw uint16
}

// NewSPIEncoderSensor configures the encoder's SPI bus and returns a
// sensor ready to use.
func NewSPIEncoderSensor(spi core.SPIDriver, rateHz uint32) (*SPIEncoderSensor, error) {
	bus, err := spi.ConfigureBus(core.SPIConfig{BusID: encoderSPIBus, Mode: 1, Rate: rateHz})
	if err != nil {
		return nil, err
	}
	return &SPIEncoderSensor{spi: spi, bus: bus}, nil
}

func (s *SPIEncoderSensor) StartSample() {
	tx := [2]byte{0xFF, 0xFF}
	var rx [2]byte
	if err := s.spi.Transfer(s.bus, tx[:], rx[:]); err != nil {
		return
	}
	s.lastRaw = uint16(rx[0])<<8 | uint16(rx[1])
}

func (s *SPIEncoderSensor) FinishSample() uint16 {
	return s.lastRaw
}

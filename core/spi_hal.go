package core

// SPIBusID identifies a hardware SPI bus.
type SPIBusID uint8

// SPIMode represents SPI clock polarity and phase (0-3).
type SPIMode uint8

// SPIConfig holds the configuration for the encoder's SPI bus.
type SPIConfig struct {
	BusID SPIBusID
	Mode  SPIMode
	Rate  uint32
}

// SPIDriver is the abstract SPI interface used by a target's
// PositionSensor implementation to talk to the absolute magnetic
// encoder. Core itself never calls this directly — only through the
// PositionSensor collaborator interface — but it lives here so
// targets/ has a consistent HAL surface alongside ADC/PWM/GPIO/DAC.
type SPIDriver interface {
	// ConfigureBus sets up the hardware SPI bus and returns an opaque handle.
	ConfigureBus(config SPIConfig) (interface{}, error)

	// Transfer performs a bidirectional SPI transfer.
	Transfer(busHandle interface{}, txData []byte, rxData []byte) error
}

var spiDriver SPIDriver

// SetSPIDriver is called by target-specific code to register its driver.
func SetSPIDriver(d SPIDriver) {
	spiDriver = d
}

// MustSPI returns the configured driver or panics if missing.
func MustSPI() SPIDriver {
	if spiDriver == nil {
		panic("SPI driver not configured")
	}
	return spiDriver
}

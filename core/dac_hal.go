package core

// DACDriver drives the single debug DAC channel that scopes the
// measured d-axis current (spec §6 peripheral expectations).
type DACDriver interface {
	// Init configures the DAC peripheral.
	Init() error

	// Write outputs a raw DAC code.
	Write(value uint16) error
}

var dacDriver DACDriver

// SetDACDriver is called by target-specific code to register its driver.
// A target without a debug DAC wired simply never calls this; DAC()
// callers in core treat a nil driver as "no debug output" rather than
// panicking, since the DAC is optional bring-up tooling, not a safety path.
func SetDACDriver(d DACDriver) {
	dacDriver = d
}

// DAC returns the configured driver, or nil if none was registered.
func DAC() DACDriver {
	return dacDriver
}

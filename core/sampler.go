package core

// kEncoderMaxRPM is the absolute magnetic encoder's rated top speed,
// used to bound how large a single-tick position delta may legitimately
// be (spec.md §4.1).
const kEncoderMaxRPM = 28000

// maxPositionDelta returns kMaxPositionDelta for the given control rate:
// the largest per-tick encoder delta consistent with the encoder's rated
// top speed, quantized to counts (65536 counts/revolution).
func maxPositionDelta(rateHz float32) int32 {
	revPerSecond := float32(kEncoderMaxRPM) / 60.0
	return int32(revPerSecond * 65536.0 / rateHz)
}

// sampleResult is everything the Sampler gathers in one tick, handed to
// the state estimator.
type sampleResult struct {
	RawPhase [3]ADCValue

	RawBus      ADCValue
	RawTemp     ADCValue
	TempIsMotor bool // which of {motor, FET} temperature this tick's aux channel read

	RawEncoder   uint16
	EncoderDelta int16

	Overrun      bool // gate monitor pins read high after conversion
	EncoderFault bool // |delta| exceeded maxPositionDelta
}

// Sampler runs first in each control tick (spec.md §4.1): it starts and
// retrieves the five ADC conversions, overlaps the encoder SPI
// transaction with them, and checks the gate-monitor inputs for a
// cycle-overrun before handing raw values on to the estimator.
type Sampler struct {
	monitorPins [3]GPIOPin
	tempIsMotor bool // alternates which aux channel this tick reads

	filtBusV     float32 // tau = 0.5s
	filt1msBusV  float32 // tau = 1ms
}

// NewSampler constructs a Sampler wired to the three gate-monitor input
// pins.
func NewSampler(monitorPins [3]GPIOPin) *Sampler {
	return &Sampler{
		monitorPins: monitorPins,
		filtBusV:    Unset(),
		filt1msBusV: Unset(),
	}
}

// sample runs one tick's worth of ADC/encoder acquisition. prevRaw and
// haveRaw carry the previous raw encoder reading, used only for the
// encoder-delta fault check; the caller is responsible for folding the
// returned raw reading into the position estimator afterward — sample
// itself is read-only with respect to position state so it can be unit
// tested independent of accumulation.
func (s *Sampler) sample(adc ADCDriver, sensor PositionSensor, prevRaw uint16, haveRaw bool, rateHz float32) (sampleResult, error) {
	var res sampleResult

	if err := adc.StartSample(ADCPhaseA); err != nil {
		return res, err
	}
	if err := adc.StartSample(ADCPhaseB); err != nil {
		return res, err
	}
	if err := adc.StartSample(ADCPhaseC); err != nil {
		return res, err
	}

	if err := adc.StartSample(ADCBusVoltage); err != nil {
		return res, err
	}
	if err := adc.StartSample(ADCAuxTemperature); err != nil {
		return res, err
	}

	var err error
	res.RawPhase[0], err = adc.ReadSample(ADCPhaseA)
	if err != nil {
		return res, err
	}
	res.RawPhase[1], err = adc.ReadSample(ADCPhaseB)
	if err != nil {
		return res, err
	}
	res.RawPhase[2], err = adc.ReadSample(ADCPhaseC)
	if err != nil {
		return res, err
	}

	sensor.StartSample()

	res.RawBus, err = adc.ReadSample(ADCBusVoltage)
	if err != nil {
		return res, err
	}
	res.RawTemp, err = adc.ReadSample(ADCAuxTemperature)
	if err != nil {
		return res, err
	}
	res.TempIsMotor = s.tempIsMotor
	s.tempIsMotor = !s.tempIsMotor

	res.RawEncoder = sensor.FinishSample()

	if haveRaw {
		res.EncoderDelta = unwrappedDelta(prevRaw, res.RawEncoder)
		limit := maxPositionDelta(rateHz)
		delta := int32(res.EncoderDelta)
		if delta < 0 {
			delta = -delta
		}
		if delta > limit {
			res.EncoderFault = true
		}
	}

	for _, pin := range s.monitorPins {
		if MustGPIO().ReadPin(pin) {
			res.Overrun = true
			break
		}
	}

	return res, nil
}

// updateBusVoltageFilters advances the two first-order IIR filters of
// spec.md §4.1 (tau = 0.5s and tau = 1ms, alpha = 1/(rate*tau)),
// seeding both from the first valid sample.
func (s *Sampler) updateBusVoltageFilters(busV, rateHz float32) (filt, filt1ms float32) {
	if IsUnset(s.filtBusV) {
		s.filtBusV = busV
	} else {
		alpha := 1.0 / (rateHz * 0.5)
		s.filtBusV += alpha * (busV - s.filtBusV)
	}
	if IsUnset(s.filt1msBusV) {
		s.filt1msBusV = busV
	} else {
		alpha := 1.0 / (rateHz * 0.001)
		if alpha > 1 {
			alpha = 1
		}
		s.filt1msBusV += alpha * (busV - s.filt1msBusV)
	}
	return s.filtBusV, s.filt1msBusV
}

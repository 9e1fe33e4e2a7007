package core

// fakeADC implements ADCDriver with a fixed raw reading per channel,
// settable between ticks to script a test scenario.
type fakeADC struct {
	raw [5]ADCValue
}

func channelIndex(ch ADCChannelID) int { return int(ch) }

func (a *fakeADC) Init(cfg ADCConfig) error { return nil }

func (a *fakeADC) StartSample(ch ADCChannelID) error { return nil }

func (a *fakeADC) ReadSample(ch ADCChannelID) (ADCValue, error) {
	return a.raw[channelIndex(ch)], nil
}

// fakePWM implements PWMDriver, recording every duty write and the
// current power-enable state so tests can assert on them.
type fakePWM struct {
	maxValue uint32
	duty     [3]PWMValue
	powered  bool
}

func newFakePWM() *fakePWM { return &fakePWM{maxValue: 1000} }

func (p *fakePWM) ConfigureThreePhase(cycleTicks uint32) (uint32, error) {
	return p.maxValue, nil
}

func (p *fakePWM) SetDutyCycle(phase PWMPhase, value PWMValue) error {
	p.duty[phase] = value
	return nil
}

func (p *fakePWM) GetMaxValue() uint32 { return p.maxValue }

func (p *fakePWM) SetPower(enabled bool) error {
	p.powered = enabled
	return nil
}

// fakeGPIO implements GPIODriver; every pin reads low (no overrun)
// unless explicitly set high via raisePin.
type fakeGPIO struct {
	high map[GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO { return &fakeGPIO{high: make(map[GPIOPin]bool)} }

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin) error        { return nil }
func (g *fakeGPIO) ConfigureInputPullUp(pin GPIOPin) error   { return nil }
func (g *fakeGPIO) ConfigureInputPullDown(pin GPIOPin) error { return nil }
func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) error     { return nil }
func (g *fakeGPIO) GetPin(pin GPIOPin) (bool, error)         { return g.high[pin], nil }
func (g *fakeGPIO) ReadPin(pin GPIOPin) bool                 { return g.high[pin] }

func (g *fakeGPIO) raisePin(pin GPIOPin) { g.high[pin] = true }

// fakeSensor implements PositionSensor with a settable raw angle.
type fakeSensor struct {
	raw uint16
}

func (s *fakeSensor) StartSample()        {}
func (s *fakeSensor) FinishSample() uint16 { return s.raw }

// fakeMotor implements MotorDriver, recording the latest Enable/Power
// state so tests can assert on it.
type fakeMotor struct {
	enabled bool
	powered bool
	fault   bool
}

func (m *fakeMotor) Enable(on bool) { m.enabled = on }
func (m *fakeMotor) Power(on bool)  { m.powered = on }
func (m *fakeMotor) Fault() bool    { return m.fault }

// fakeTelemetry implements TelemetryManager, keeping only the most
// recent observation.
type fakeTelemetry struct {
	status  Status
	control Control
	command CommandData
	calls   int
}

func (t *fakeTelemetry) Observe(status Status, control Control, lastCommand CommandData) {
	t.status, t.control, t.command = status, control, lastCommand
	t.calls++
}

// newTestServo wires a Servo to fresh fakes at the given rate, with the
// five phase/bus/temp channels of the fake ADC left at zero until the
// test sets them. It also registers the fakes via SetADCDriver/
// SetPWMDriver/SetGPIODriver, since Servo reads those through the
// package-level MustADC/MustPWM/MustGPIO singletons rather than
// injected fields.
func newTestServo(rateHz float32) (*Servo, *fakeADC, *fakePWM, *fakeGPIO, *fakeSensor, *fakeMotor, *fakeTelemetry) {
	adc := &fakeADC{}
	pwm := newFakePWM()
	gpio := newFakeGPIO()
	sensor := &fakeSensor{}
	motor := &fakeMotor{}
	tel := &fakeTelemetry{}

	SetADCDriver(adc)
	SetPWMDriver(pwm)
	SetGPIODriver(gpio)

	monitorPins := [3]GPIOPin{0, 1, 2}
	s := NewServo(rateHz, monitorPins, sensor, motor, tel)
	return s, adc, pwm, gpio, sensor, motor, tel
}

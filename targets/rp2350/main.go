//go:build rp2350

package main

import (
	"bldcservo/core"
	"bldcservo/protocol"
	"machine"
	"time"
)

// Wire command IDs, shared with targets/rp2040's main.go.
const (
	cmdSetCommand uint16 = 1
	cmdGetStatus  uint16 = 2
	respStatus    uint16 = 3
	cmdIdentify   uint16 = 4
	respIdentify  uint16 = 5

	wireFixedPointScale = 1000
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	servo *core.Servo

	consecutiveWriteFailures uint32
	usbWasDisconnected       bool
)

func toFixed(v float32) int32   { return int32(v * wireFixedPointScale) }
func fromFixed(v int32) float32 { return float32(v) / wireFixedPointScale }

func main() {
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()
	InitDebugUART()
	DebugPrintln("servo controller starting (rp2350)")

	adcDriver := NewRPAdcDriver()
	core.SetADCDriver(adcDriver)

	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)

	pwmDriver := NewRP2040PWMDriver()
	core.SetPWMDriver(pwmDriver)

	spiDriver := NewRP2350SPIDriver()
	core.SetSPIDriver(spiDriver)

	encoder, err := NewSPIEncoderSensor(spiDriver, 1_000_000)
	if err != nil {
		// Hardware SPI failed to claim the encoder's bus (pins not on
		// either PL022 controller, or the bus already claimed); fall
		// back to bit-banging the same pins over GPIO.
		DebugPrintln("hardware SPI init failed, falling back to software SPI")
		swDriver := NewSoftwareSPIDriver()
		core.SetSPIDriver(swDriver)
		encoder, err = NewSPIEncoderSensor(swDriver, 1_000_000)
		if err != nil {
			DebugPrintln("encoder init failed")
			blinkFault()
		}
	}

	gateDriver, err := NewGateDriver(gpioDriver)
	if err != nil {
		DebugPrintln("gate driver init failed")
		blinkFault()
	}

	telemetry := newWireTelemetry()

	monitorPins := [3]core.GPIOPin{21, 22, 23}
	servo = core.NewServo(40000, monitorPins, encoder, gateDriver, telemetry)
	if err := servo.Start(); err != nil {
		DebugPrintln("servo start failed")
		blinkFault()
	}

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, handleCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	transport.SetFlushCallback(writeUSB)

	go usbReaderLoop()
	go controlLoop()

	DebugPrintln("entering main loop")

	lastMs := GetHardwareTime()
	for {
		func() {
			defer func() { recover() }()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)
				transport.Receive(inputBuf)
				if consumed := originalLen - inputBuf.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}

			now := GetHardwareTime()
			if now-lastMs >= 1000 {
				lastMs = now
				servo.PollMillisecond()
			}
		}()
		time.Sleep(10 * time.Microsecond)
	}
}

// controlLoop drives Servo.Tick() near 40kHz from a dedicated goroutine;
// see targets/rp2040/main.go's controlLoop for why this is a busy-wait
// rather than a hardware timer-alarm interrupt.
func controlLoop() {
	const periodUs = 25
	last := GetHardwareTime()
	for {
		now := GetHardwareTime()
		if now-last >= periodUs {
			last = now
			servo.Tick()
		}
	}
}

func blinkFault() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}

func handleCommand(cmdID uint16, data *[]byte) error {
	switch cmdID {
	case cmdSetCommand:
		return handleSetCommand(data)
	case cmdGetStatus:
		sendStatus()
		return nil
	case cmdIdentify:
		sendIdentify()
		return nil
	}
	return nil
}

func handleSetCommand(data *[]byte) error {
	modeVal, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	posFixed, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	velFixed, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}

	cmd := core.NewCommandData()
	cmd.Mode = core.Mode(modeVal)
	cmd.Position = core.Unset()
	if posFixed != 0 {
		cmd.Position = fromFixed(posFixed)
	}
	cmd.Velocity = fromFixed(velFixed)
	return servo.Command(cmd)
}

func sendStatus() {
	status := servo.Status()
	transport.SendCommand(respStatus, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQInt(output, int32(status.Mode))
		protocol.EncodeVLQInt(output, int32(status.Fault))
		protocol.EncodeVLQInt(output, toFixed(status.UnwrappedScaled))
		protocol.EncodeVLQInt(output, toFixed(status.VelocityUnitsPerS))
		protocol.EncodeVLQInt(output, toFixed(status.BusVoltage))
	})
}

func sendIdentify() {
	blob, err := servo.Identify()
	if err != nil {
		blob = nil
	}
	transport.SendCommand(respIdentify, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(output, blob)
	})
}

func usbReaderLoop() {
	defer func() {
		if recover() != nil {
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()
	for {
		if USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				time.Sleep(time.Millisecond)
				continue
			}
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
			}
			inputBuffer.Write([]byte{b})
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func writeUSB() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}

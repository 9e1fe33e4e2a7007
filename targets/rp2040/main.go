//go:build rp2040 || rp2350

package main

import (
	"bldcservo/core"
	"bldcservo/protocol"
	"machine"
	"time"
)

// Wire command IDs. Float fields travel as VLQ ints scaled by
// wireFixedPointScale, the same fixed-point convention the VLQ decoder
// is already built for — there is no floating-point encoding in this
// protocol.
const (
	cmdSetCommand uint16 = 1 // host -> controller: a CommandData update
	cmdGetStatus  uint16 = 2 // host -> controller: request a Status push
	respStatus    uint16 = 3 // controller -> host: a Status snapshot
	cmdIdentify   uint16 = 4 // host -> controller: request a config dump
	respIdentify  uint16 = 5 // controller -> host: compressed config dump

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

func toFixed(v float32) int32  { return int32(v * wireFixedPointScale) }
func fromFixed(v int32) float32 { return float32(v) / wireFixedPointScale }

func main() {
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()

	adcDriver := NewRPAdcDriver()
	core.SetADCDriver(adcDriver)

	gpioDriver := NewRPGPIODriver()
	core.SetGPIODriver(gpioDriver)

	pwmDriver := NewRP2040PWMDriver()
	core.SetPWMDriver(pwmDriver)

	spiDriver := NewRP2040SPIDriver()
	core.SetSPIDriver(spiDriver)

	encoder, err := NewSPIEncoderSensor(spiDriver, 1_000_000)
	if err != nil {
		blinkFault()
	}

	gateDriver, err := NewGateDriver(gpioDriver)
	if err != nil {
		blinkFault()
	}

	telemetry := newWireTelemetry()

	monitorPins := [3]core.GPIOPin{21, 22, 23}
	servo = core.NewServo(40000, monitorPins, encoder, gateDriver, telemetry)
	if err := servo.Start(); err != nil {
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

// controlLoop drives Servo.Tick() at the configured 40kHz rate from a
// dedicated goroutine so the ISR-equivalent pass isn't starved by USB
// handling in main(). A real deployment would run this from a hardware
// timer interrupt instead (core/interrupt_tinygo.go already provides
// the disable/restore-interrupts hooks for that); this busy-wait
// approximation keeps the target buildable without register-level
// timer-alarm wiring, which is out of scope here.
func controlLoop() {
	const periodUs = 25 // 1 / 40kHz
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

// handleCommand decodes one frame's command into a servo.Command call
// or a status push.
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

// Package telemetry implements the host side of the servo controller's
// wire protocol: connect over serial, push CommandData updates, and
// poll Status snapshots back.
package telemetry

import (
	"fmt"
	"time"

	"bldcservo/core"
	"bldcservo/host/serial"
	"bldcservo/protocol"
)

// Wire command IDs. Must match targets/rp2040 and targets/rp2350's
// main.go exactly — there is no dictionary negotiation in this
// protocol, just a fixed, shared set of command IDs.
const (
	cmdSetCommand uint16 = 1
	cmdGetStatus  uint16 = 2
	respStatus    uint16 = 3
	cmdIdentify   uint16 = 4
	respIdentify  uint16 = 5

	wireFixedPointScale = 1000

	statusTimeout = 500 * time.Millisecond
)

func toFixed(v float32) int32   { return int32(v * wireFixedPointScale) }
func fromFixed(v int32) float32 { return float32(v) / wireFixedPointScale }

// Controller represents a connection to a servo controller over serial.
type Controller struct {
	transport *protocol.HostTransport
	port      serial.Port
	connected bool
}

// NewController creates a Controller (not yet connected).
func NewController() *Controller {
	return &Controller{}
}

// Connect opens the given serial device using default settings.
func (c *Controller) Connect(device string) error {
	return c.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens the serial device with a custom configuration.
func (c *Controller) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	c.port = port
	c.transport = protocol.NewHostTransport(port)
	c.connected = true

	// Give the controller time to finish booting if it just powered on.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Close closes the connection.
func (c *Controller) Close() error {
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			return err
		}
	}
	c.connected = false
	return nil
}

// IsConnected reports whether Connect succeeded and Close hasn't run.
func (c *Controller) IsConnected() bool {
	return c.connected
}

// SendCommand pushes a CommandData update to the controller.
func (c *Controller) SendCommand(cmd core.CommandData) error {
	if !c.connected {
		return fmt.Errorf("not connected to controller")
	}
	return c.transport.SendCommand(cmdSetCommand, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQInt(output, int32(cmd.Mode))
		if core.IsUnset(cmd.Position) {
			protocol.EncodeVLQInt(output, 0)
		} else {
			protocol.EncodeVLQInt(output, toFixed(cmd.Position))
		}
		protocol.EncodeVLQInt(output, toFixed(cmd.Velocity))
	})
}

// RequestStatus polls the controller for a Status snapshot.
func (c *Controller) RequestStatus() (core.Status, error) {
	var status core.Status
	if !c.connected {
		return status, fmt.Errorf("not connected to controller")
	}

	if err := c.transport.SendCommand(cmdGetStatus, func(protocol.OutputBuffer) {}); err != nil {
		return status, fmt.Errorf("failed to request status: %w", err)
	}

	resp, err := c.transport.ReceiveResponse(statusTimeout)
	if err != nil {
		return status, fmt.Errorf("failed to receive status: %w", err)
	}

	payload := resp.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return status, fmt.Errorf("failed to decode response command ID: %w", err)
	}
	if uint16(cmdID) != respStatus {
		return status, fmt.Errorf("unexpected response command ID: %d (expected %d)", cmdID, respStatus)
	}

	mode, err := protocol.DecodeVLQInt(&payload)
	if err != nil {
		return status, fmt.Errorf("failed to decode mode: %w", err)
	}
	fault, err := protocol.DecodeVLQInt(&payload)
	if err != nil {
		return status, fmt.Errorf("failed to decode fault: %w", err)
	}
	unwrapped, err := protocol.DecodeVLQInt(&payload)
	if err != nil {
		return status, fmt.Errorf("failed to decode position: %w", err)
	}
	velocity, err := protocol.DecodeVLQInt(&payload)
	if err != nil {
		return status, fmt.Errorf("failed to decode velocity: %w", err)
	}
	busVoltage, err := protocol.DecodeVLQInt(&payload)
	if err != nil {
		return status, fmt.Errorf("failed to decode bus voltage: %w", err)
	}

	status.Mode = core.Mode(mode)
	status.Fault = core.FaultCode(fault)
	status.UnwrappedScaled = fromFixed(unwrapped)
	status.VelocityUnitsPerS = fromFixed(velocity)
	status.BusVoltage = fromFixed(busVoltage)
	return status, nil
}

// RequestIdentify polls the controller for its zlib-compressed
// motor/servo/position configuration listing.
func (c *Controller) RequestIdentify() ([]byte, error) {
	if !c.connected {
		return nil, fmt.Errorf("not connected to controller")
	}

	if err := c.transport.SendCommand(cmdIdentify, func(protocol.OutputBuffer) {}); err != nil {
		return nil, fmt.Errorf("failed to request identify: %w", err)
	}

	resp, err := c.transport.ReceiveResponse(statusTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to receive identify response: %w", err)
	}

	payload := resp.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response command ID: %w", err)
	}
	if uint16(cmdID) != respIdentify {
		return nil, fmt.Errorf("unexpected response command ID: %d (expected %d)", cmdID, respIdentify)
	}

	blob, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config blob: %w", err)
	}
	return blob, nil
}

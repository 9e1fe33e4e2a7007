//go:build rp2040 || rp2350

package main

import "bldcservo/core"

// wireTelemetry implements core.TelemetryManager by doing nothing on
// every tick; sendStatus reads core.Servo.Status() directly when the
// host asks for it, so there is no need to buffer a second copy here.
// Kept as a named type, rather than passing nil, so a future addition
// (e.g. streaming telemetry without a host poll) has somewhere to live.
type wireTelemetry struct{}

func newWireTelemetry() *wireTelemetry { return &wireTelemetry{} }

func (*wireTelemetry) Observe(status core.Status, control core.Control, lastCommand core.CommandData) {
}

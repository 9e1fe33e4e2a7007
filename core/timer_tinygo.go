//go:build tinygo

package core

import "sync/atomic"

var tickValue uint32

// currentTick returns the last published ISR tick count. Used outside
// the ISR (telemetry, clock()) so it is published with an atomic store.
func currentTick() uint32 {
	return atomic.LoadUint32(&tickValue)
}

// advanceTick publishes a new ISR tick count, called once per ISR pass.
func advanceTick(t uint32) {
	atomic.StoreUint32(&tickValue, t)
}

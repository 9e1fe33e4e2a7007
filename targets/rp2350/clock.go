//go:build rp2350

package main

import (
	"runtime/volatile"
	"unsafe"
)

// RP2350's TIMER0 peripheral sits at a different base address than
// RP2040's TIMER, but exposes the same free-running 64-bit microsecond
// counter shape.
const (
	timerBase     = 0x400B0000
	timerTimeRawH = timerBase + 0x24
	timerTimeRawL = timerBase + 0x28
)

var (
	timerRawH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawH)))
	timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawL)))
)

// GetHardwareTime reads the low 32 bits of the free-running
// microsecond counter.
func GetHardwareTime() uint32 {
	return timerRawL.Get()
}

// GetHardwareUptime reads the full 64-bit counter, retrying if a
// rollover was caught mid-read.
func GetHardwareUptime() uint64 {
	for {
		high1 := timerRawH.Get()
		low := timerRawL.Get()
		high2 := timerRawH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// HardwareMillisecondTimer implements core.MillisecondTimer for
// bring-up delays by busy-polling the free-running microsecond counter.
type HardwareMillisecondTimer struct{}

func (HardwareMillisecondTimer) WaitMicroseconds(n uint32) {
	start := GetHardwareTime()
	for GetHardwareTime()-start < n {
	}
}

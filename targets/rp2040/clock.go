//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"leadscrew/core"
)

// TIMERAWL is the low word of the 1 MHz TIMER peripheral counter. Reading
// the raw register does not latch the high word, which the scheduler does
// not need: core.GetUptime extends the low word itself.
var timeLow = (*volatile.Register32)(unsafe.Pointer(uintptr(0x40054000 + 0x0C)))

// InitClock publishes the scheduler clock in the dictionary
func InitClock() {
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
}

// UpdateSystemTime hands the scheduler the current microsecond count. The
// main loop calls it before every timer pass.
func UpdateSystemTime() {
	core.SetTime(timeLow.Get())
}

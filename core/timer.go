package core

import "sync/atomic"

// TimerFreq is the tick rate of the system clock. The RP2040 timer and the
// host clock both count microseconds.
const (
	TimerFreq = 1000000
)

var (
	systemTicks atomic.Uint32
	uptimeHigh  uint32
	lastTicks   uint32
)

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return systemTicks.Load()
}

// SetTime sets the current system time (hardware integration and simulation)
func SetTime(ticks uint32) {
	state := disableInterrupts()
	if ticks < lastTicks {
		uptimeHigh++
	}
	lastTicks = ticks
	restoreInterrupts(state)
	systemTicks.Store(ticks)
}

// GetUptime returns 64-bit uptime in timer ticks
func GetUptime() uint64 {
	state := disableInterrupts()
	high, low := uptimeHigh, lastTicks
	restoreInterrupts(state)
	return uint64(high)<<32 | uint64(low)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// TimerInit resets the clock to zero
func TimerInit() {
	state := disableInterrupts()
	uptimeHigh = 0
	lastTicks = 0
	restoreInterrupts(state)
	systemTicks.Store(0)
}

// ProcessTimers runs every timer that is due at the current time
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}

//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// interruptMask stands in for the CPU interrupt mask. Goroutines that play
// the part of interrupt handlers (simulator, Linux target) exclude each
// other through it. Critical sections must not nest.
var interruptMask sync.Mutex

// disableInterrupts enters the emulated critical section
func disableInterrupts() State {
	interruptMask.Lock()
	return 0
}

// restoreInterrupts leaves the emulated critical section
func restoreInterrupts(state State) {
	interruptMask.Unlock()
}

// timingMask guards the timing ring. Events are recorded both inside and
// outside the interrupt mask, so it is a separate lock taken last.
var timingMask sync.Mutex

func lockTiming() State {
	timingMask.Lock()
	return 0
}

func unlockTiming(state State) {
	timingMask.Unlock()
}

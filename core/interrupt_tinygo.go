//go:build tinygo

package core

import "runtime/interrupt"

// State is the saved interrupt mask
type State = interrupt.State

// disableInterrupts disables interrupts and returns the previous state
func disableInterrupts() State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state State) {
	interrupt.Restore(state)
}

// lockTiming guards the timing ring; the interrupt mask nests on hardware
func lockTiming() State {
	return interrupt.Disable()
}

func unlockTiming(state State) {
	interrupt.Restore(state)
}

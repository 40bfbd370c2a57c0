package core

// StepperBackend puts step pulses on the wire. The RP2040 uses a PIO
// state machine or SIO writes, Linux uses character device lines, and
// the simulator records.
//
// Step and SetDirection are called from StepPulser inside the engine's
// critical section, so neither may block.
type StepperBackend interface {
	// Init claims the pins. Inverted lines are active low.
	Init(stepPin, dirPin uint8, invertStep, invertDir bool) error

	// Step emits one pulse of the backend's configured width
	Step()

	// SetDirection sets the direction line; true is reverse. It must
	// leave the driver's setup time before the next Step.
	SetDirection(dir bool)

	// Stop drops queued pulses and leaves the step line idle
	Stop()

	GetName() string
}

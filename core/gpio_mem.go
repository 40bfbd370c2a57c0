package core

import "errors"

var ErrPinNotConfigured = errors.New("pin not configured")

// MemGPIO is a GPIODriver backed by memory. The simulator and tests use it
// to stand in for buttons and output lines.
type MemGPIO struct {
	levels     map[GPIOPin]bool
	outputs    map[GPIOPin]bool
	configured map[GPIOPin]bool
}

// NewMemGPIO creates an empty pin bank
func NewMemGPIO() *MemGPIO {
	return &MemGPIO{
		levels:     make(map[GPIOPin]bool),
		outputs:    make(map[GPIOPin]bool),
		configured: make(map[GPIOPin]bool),
	}
}

func (m *MemGPIO) ConfigureOutput(pin GPIOPin) error {
	m.configured[pin] = true
	m.outputs[pin] = true
	m.levels[pin] = false
	return nil
}

// ConfigureInputPullUp leaves an unconnected input reading high
func (m *MemGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	m.configured[pin] = true
	m.outputs[pin] = false
	m.levels[pin] = true
	return nil
}

func (m *MemGPIO) SetPin(pin GPIOPin, value bool) error {
	if !m.configured[pin] {
		return ErrPinNotConfigured
	}
	m.levels[pin] = value
	return nil
}

func (m *MemGPIO) GetPin(pin GPIOPin) (bool, error) {
	if !m.configured[pin] {
		return false, ErrPinNotConfigured
	}
	return m.levels[pin], nil
}

// Drive forces the level seen on an input pin (a button press, a wire)
func (m *MemGPIO) Drive(pin GPIOPin, value bool) {
	m.levels[pin] = value
}

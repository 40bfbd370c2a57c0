package menu

import "leadscrew/core"

// Buttons is a bitmask of pressed buttons
type Buttons uint8

const (
	Button1 Buttons = 1 << iota
	Button2
	Button3
	Button4
	Button5
)

// Setup menu roles
const (
	ButtonNext = Button1
	ButtonUp   = Button2
	ButtonDown = Button3
)

// Run mode roles
const (
	ButtonSetup  = Button1
	ButtonMode   = Button2
	ButtonLatch  = Button4
	ButtonResync = Button5
)

// ButtonReader samples five active-low buttons. A level change is
// accepted once two consecutive samples agree.
type ButtonReader struct {
	gpio core.GPIODriver
	pins [5]core.GPIOPin

	last   Buttons
	stable Buttons
}

// NewButtonReader configures the pins as pulled-up inputs
func NewButtonReader(gpio core.GPIODriver, pins [5]core.GPIOPin) (*ButtonReader, error) {
	for _, pin := range pins {
		if err := gpio.ConfigureInputPullUp(pin); err != nil {
			return nil, err
		}
	}
	return &ButtonReader{gpio: gpio, pins: pins}, nil
}

// Sample reads the raw state. A pin that cannot be read counts as released.
func (r *ButtonReader) Sample() Buttons {
	var b Buttons
	for i, pin := range r.pins {
		level, err := r.gpio.GetPin(pin)
		if err == nil && !level {
			b |= 1 << i
		}
	}
	return b
}

// Poll samples once and returns the buttons that became pressed
func (r *ButtonReader) Poll() Buttons {
	sample := r.Sample()
	agreed := sample == r.last
	r.last = sample
	if !agreed {
		return 0
	}
	pressed := sample &^ r.stable
	r.stable = sample
	return pressed
}

// Held returns the debounced state
func (r *ButtonReader) Held() Buttons {
	return r.stable
}

package core

// GPIOPin is a pin number on the target: an RP2040 GPIO or a Linux line
// offset
type GPIOPin uint32

// GPIODriver is the pin access the portable code needs: buttons are
// pulled-up inputs, the driver enable is an output. Targets register one
// with SetGPIODriver; tests use MemGPIO.
type GPIODriver interface {
	ConfigureOutput(pin GPIOPin) error
	ConfigureInputPullUp(pin GPIOPin) error
	SetPin(pin GPIOPin, value bool) error
	GetPin(pin GPIOPin) (bool, error)
}

var gpioDriver GPIODriver

// SetGPIODriver installs the target's driver
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the installed driver. Using outputs before a target
// installed one is a wiring bug, so it panics.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}

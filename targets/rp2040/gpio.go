//go:build rp2040 || rp2350

package main

import (
	"machine"

	"leadscrew/core"
)

// RPGPIODriver implements core.GPIODriver over machine.Pin
type RPGPIODriver struct {
	configuredPins map[core.GPIOPin]machine.Pin
}

func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{configuredPins: make(map[core.GPIOPin]machine.Pin)}
}

func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configuredPins[pin] = p
	return nil
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	d.configuredPins[pin] = p
	return nil
}

// SetPin configures the pin as an output on first use
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, exists := d.configuredPins[pin]
	if !exists {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		p = d.configuredPins[pin]
	}
	p.Set(value)
	return nil
}

func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, exists := d.configuredPins[pin]
	if !exists {
		return false, core.ErrPinNotConfigured
	}
	return p.Get(), nil
}

//go:build rp2040 || rp2350

package pio

import (
	"errors"

	"leadscrew/core"
)

var ErrPulseTooLong = errors.New("step pulse must be shorter than the pulse period")

// NewBackend returns an initialised step backend on the given pins,
// preferring a PIO state machine and falling back to GPIO. A pulse
// shorter than the period the caller pulses at keeps the PIO FIFO from
// ever filling.
func NewBackend(stepPin, dirPin uint8, invertStep, invertDir bool, widthUS, periodUS uint32) (core.StepperBackend, error) {
	if widthUS >= periodUS {
		return nil, ErrPulseTooLong
	}
	if !invertStep {
		if b, err := NewPulseBackend(widthUS); err == nil {
			if err := b.Init(stepPin, dirPin, invertStep, invertDir); err == nil {
				return b, nil
			}
			b.sm.Unclaim()
		}
	}
	core.DebugPrintln("[STEP] no PIO state machine, using GPIO")
	b := NewGPIOBackend(widthUS)
	if err := b.Init(stepPin, dirPin, invertStep, invertDir); err != nil {
		return nil, err
	}
	return b, nil
}

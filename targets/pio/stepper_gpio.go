//go:build rp2040 || rp2350

package pio

import (
	"device/arm"
	"device/rp"
	"machine"
)

// GPIOBackend drives step and direction through SIO registers. It holds
// the step line high for the pulse width in a short spin, so it is only
// the fallback when no state machine is free.
type GPIOBackend struct {
	stepMask uint32
	dirMask  uint32

	invertStep bool
	invertDir  bool
	spin       uint32
}

// NewGPIOBackend builds a backend with the given pulse width
func NewGPIOBackend(widthUS uint32) *GPIOBackend {
	// About four cycles per spin iteration
	return &GPIOBackend{spin: widthUS * (machine.CPUFrequency() / 1000000) / 4}
}

func (b *GPIOBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	step := machine.Pin(stepPin)
	dir := machine.Pin(dirPin)
	step.Configure(machine.PinConfig{Mode: machine.PinOutput})
	dir.Configure(machine.PinConfig{Mode: machine.PinOutput})
	step.Set(invertStep)
	dir.Set(invertDir)

	b.stepMask = 1 << stepPin
	b.dirMask = 1 << dirPin
	b.invertStep = invertStep
	b.invertDir = invertDir
	return nil
}

// Step raises the step line for the pulse width
func (b *GPIOBackend) Step() {
	b.setStep(true)
	for i := uint32(0); i < b.spin; i++ {
		arm.Asm("nop")
	}
	b.setStep(false)
}

func (b *GPIOBackend) setStep(active bool) {
	if active != b.invertStep {
		rp.SIO.GPIO_OUT_SET.Set(b.stepMask)
	} else {
		rp.SIO.GPIO_OUT_CLR.Set(b.stepMask)
	}
}

// SetDirection sets the direction line; true is reverse
func (b *GPIOBackend) SetDirection(dir bool) {
	if dir != b.invertDir {
		rp.SIO.GPIO_OUT_SET.Set(b.dirMask)
	} else {
		rp.SIO.GPIO_OUT_CLR.Set(b.dirMask)
	}
	// Dir-to-step setup time for TMC-class drivers (20 ns)
	arm.Asm("nop\nnop\nnop")
}

func (b *GPIOBackend) Stop() {
	b.setStep(false)
}

func (b *GPIOBackend) GetName() string {
	return "GPIO"
}

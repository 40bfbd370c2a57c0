//go:build linux && !tinygo

package main

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"leadscrew/core"
)

const consumer = "leadscrew"

// chipGPIO implements core.GPIODriver with one requested line per pin
type chipGPIO struct {
	chip string

	mu    sync.Mutex
	lines map[core.GPIOPin]*gpiocdev.Line
}

func newChipGPIO(chip string) *chipGPIO {
	return &chipGPIO{chip: chip, lines: make(map[core.GPIOPin]*gpiocdev.Line)}
}

func (g *chipGPIO) request(pin core.GPIOPin, opts ...gpiocdev.LineReqOption) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.lines[pin]; ok {
		return nil
	}
	opts = append(opts, gpiocdev.WithConsumer(consumer))
	line, err := gpiocdev.RequestLine(g.chip, int(pin), opts...)
	if err != nil {
		return fmt.Errorf("request %s line %d: %w", g.chip, pin, err)
	}
	g.lines[pin] = line
	return nil
}

func (g *chipGPIO) line(pin core.GPIOPin) (*gpiocdev.Line, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	line, ok := g.lines[pin]
	if !ok {
		return nil, core.ErrPinNotConfigured
	}
	return line, nil
}

func (g *chipGPIO) ConfigureOutput(pin core.GPIOPin) error {
	return g.request(pin, gpiocdev.AsOutput(0))
}

func (g *chipGPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	return g.request(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
}

func (g *chipGPIO) SetPin(pin core.GPIOPin, value bool) error {
	line, err := g.line(pin)
	if err != nil {
		return err
	}
	return line.SetValue(level(value))
}

func (g *chipGPIO) GetPin(pin core.GPIOPin) (bool, error) {
	line, err := g.line(pin)
	if err != nil {
		return false, err
	}
	v, err := line.Value()
	return v == 1, err
}

// Close releases every requested line
func (g *chipGPIO) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for pin, line := range g.lines {
		line.Close()
		delete(g.lines, pin)
	}
}

func level(b bool) int {
	if b {
		return 1
	}
	return 0
}

// lineBackend pulses the step line with a pair of SetValue calls. Each
// call is a GPIO ioctl, which already spans the driver's minimum pulse
// width, so no sleep is needed between them.
type lineBackend struct {
	step, dir  *gpiocdev.Line
	invertStep bool
	invertDir  bool
	chip       string
}

func newLineBackend(chip string) *lineBackend {
	return &lineBackend{chip: chip}
}

func (b *lineBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	b.invertStep = invertStep
	b.invertDir = invertDir

	step, err := gpiocdev.RequestLine(b.chip, int(stepPin),
		gpiocdev.AsOutput(level(invertStep)), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return fmt.Errorf("request step line %d: %w", stepPin, err)
	}
	dir, err := gpiocdev.RequestLine(b.chip, int(dirPin),
		gpiocdev.AsOutput(level(invertDir)), gpiocdev.WithConsumer(consumer))
	if err != nil {
		step.Close()
		return fmt.Errorf("request dir line %d: %w", dirPin, err)
	}
	b.step, b.dir = step, dir
	return nil
}

func (b *lineBackend) Step() {
	b.step.SetValue(level(!b.invertStep))
	b.step.SetValue(level(b.invertStep))
}

func (b *lineBackend) SetDirection(dir bool) {
	b.dir.SetValue(level(dir != b.invertDir))
}

func (b *lineBackend) Stop() {
	b.step.SetValue(level(b.invertStep))
}

func (b *lineBackend) GetName() string {
	return "gpiocdev"
}

func (b *lineBackend) Close() {
	if b.step != nil {
		b.step.Close()
	}
	if b.dir != nil {
		b.dir.Close()
	}
}

// encoder delivers rising edges of channel A with the level of channel B
type encoder struct {
	a, b *gpiocdev.Line
}

func newEncoder(chip string, pinA, pinB core.GPIOPin, onEdge func(dir bool)) (*encoder, error) {
	b, err := gpiocdev.RequestLine(chip, int(pinB),
		gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("request encoder B line %d: %w", pinB, err)
	}
	e := &encoder{b: b}
	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventRisingEdge {
			return
		}
		v, err := e.b.Value()
		if err != nil {
			return
		}
		onEdge(v == 1)
	}
	a, err := gpiocdev.RequestLine(chip, int(pinA),
		gpiocdev.WithPullUp, gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler), gpiocdev.WithConsumer(consumer))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request encoder A line %d: %w", pinA, err)
	}
	e.a = a
	return e, nil
}

func (e *encoder) Close() {
	e.a.Close()
	e.b.Close()
}

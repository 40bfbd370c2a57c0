//go:build rp2040 || rp2350

// Package pio holds the RP2040 step pulse backends: a PIO state machine
// that times each pulse in hardware, and a plain GPIO fallback.
package pio

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"leadscrew/core"
)

// The state machine runs at 1 MHz so one cycle is one microsecond.
//
// Each TX word is one pulse:
//
//	bit 0:     direction level
//	bits 1-31: extra high cycles (pulse width minus 2)
//
// The direction line settles one cycle before the step line rises, and
// the machine stalls on the next pull, so the CPU only pushes a word.
const smFrequency = 1000000

func buildPulseProgram() []uint16 {
	return []uint16{
		// .wrap_target
		rp2pio.EncodePull(false, true),             // 0: pull block
		rp2pio.EncodeOut(rp2pio.SrcDestPins, 1),    // 1: out pins, 1    ; direction
		rp2pio.EncodeOut(rp2pio.SrcDestX, 31),      // 2: out x, 31      ; width
		rp2pio.EncodeSet(rp2pio.SrcDestPins, 1),    // 3: set pins, 1    ; step high
		rp2pio.EncodeJmp(4, rp2pio.JmpXNZeroDec),   // 4: jmp x--, 4
		rp2pio.EncodeSet(rp2pio.SrcDestPins, 0),    // 5: set pins, 0    ; step low
		// .wrap
	}
}

var ErrNoStateMachine = errors.New("no free PIO state machine")

// PulseBackend emits each step as one PIO-timed pulse
type PulseBackend struct {
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	stepPin machine.Pin
	dirPin  machine.Pin

	widthUS   uint32
	invertDir bool
	reverse   bool
	dropped   uint32
}

// NewPulseBackend claims a state machine on PIO0, or PIO1 if PIO0 is full.
// widthUS is the step pulse width; anything below 2 us is raised to 2.
func NewPulseBackend(widthUS uint32) (*PulseBackend, error) {
	for _, block := range []*rp2pio.PIO{rp2pio.PIO0, rp2pio.PIO1} {
		sm, err := block.ClaimStateMachine()
		if err == nil {
			return &PulseBackend{pio: block, sm: sm, widthUS: widthUS}, nil
		}
	}
	return nil, ErrNoStateMachine
}

// Init loads the program and hands both pins to the state machine
func (b *PulseBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	if invertStep {
		// The program drives an active-high pulse
		return errors.New("pio backend: inverted step not supported")
	}
	b.stepPin = machine.Pin(stepPin)
	b.dirPin = machine.Pin(dirPin)
	b.invertDir = invertDir

	program := buildPulseProgram()
	offset, err := b.pio.AddProgram(program, -1)
	if err != nil {
		return err
	}

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset, offset+uint8(len(program))-1)
	whole, frac, err := rp2pio.ClkDivFromFrequency(smFrequency, machine.CPUFrequency())
	if err != nil {
		return err
	}
	cfg.SetClkDivIntFrac(whole, frac)

	b.sm.Init(offset, cfg)
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, b.invertDir)
	b.sm.SetEnabled(true)
	return nil
}

// Step queues one pulse. The caller counts the step as taken, so a full
// FIFO is a position error: it only happens if pulses come faster than
// the pulse width, which NewBackend rules out. Such a pulse is dropped and
// counted instead of waiting.
func (b *PulseBackend) Step() {
	if b.sm.IsTxFIFOFull() {
		b.dropped++
		core.RecordTiming(core.EvtPulseDrop, 0, core.GetTime(), b.dropped, 0)
		return
	}
	var extra uint32
	if b.widthUS > 2 {
		extra = b.widthUS - 2
	}
	word := extra << 1
	if b.reverse != b.invertDir {
		word |= 1
	}
	b.sm.TxPut(word)
}

// SetDirection latches the level sent with the next pulse
func (b *PulseBackend) SetDirection(dir bool) {
	b.reverse = dir
}

// Stop discards queued pulses and leaves the step line low
func (b *PulseBackend) Stop() {
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
	b.sm.Exec(rp2pio.EncodeSet(rp2pio.SrcDestPins, 0))
	b.sm.SetEnabled(true)
}

func (b *PulseBackend) GetName() string {
	return "PIO"
}

// Dropped returns how many pulses found the FIFO full
func (b *PulseBackend) Dropped() uint32 {
	return b.dropped
}

package core

import (
	"errors"

	"leadscrew/protocol"
)

// DigitalOut is an output line with a safe default that the firmware
// returns to on shutdown (the stepper driver enable line).
type DigitalOut struct {
	OID          uint8
	Pin          GPIOPin
	value        bool
	defaultValue bool
	held         bool // level before the last shutdown
}

var (
	digitalOutputs      []*DigitalOut
	errUnknownOutput    = errors.New("unknown digital output")
	digitalShutdownHook bool
)

// NewDigitalOut configures pin as an output at value and registers it for
// update_digital_out and shutdown handling. The OID is its index.
func NewDigitalOut(pin GPIOPin, value, defaultValue bool) (*DigitalOut, error) {
	driver := MustGPIO()
	if err := driver.ConfigureOutput(pin); err != nil {
		return nil, err
	}
	dout := &DigitalOut{
		OID:          uint8(len(digitalOutputs)),
		Pin:          pin,
		defaultValue: defaultValue,
	}
	if err := dout.Set(value); err != nil {
		return nil, err
	}
	dout.held = value
	digitalOutputs = append(digitalOutputs, dout)

	if !digitalShutdownHook {
		RegisterShutdownHandler(ShutdownAllDigitalOut)
		RegisterClearShutdownHandler(RestoreAllDigitalOut)
		digitalShutdownHook = true
	}
	return dout, nil
}

// Set drives the line
func (d *DigitalOut) Set(value bool) error {
	if err := MustGPIO().SetPin(d.Pin, value); err != nil {
		return err
	}
	d.value = value
	return nil
}

// Value returns the last level written
func (d *DigitalOut) Value() bool {
	return d.value
}

// InitGPIOCommands registers the host command for output lines
func InitGPIOCommands() {
	RegisterCommand("update_digital_out", "oid=%c value=%c", handleUpdateDigitalOut)
}

// handleUpdateDigitalOut sets an output immediately.
// Refused while shut down so a stopped machine stays stopped.
func handleUpdateDigitalOut(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if int(oid) >= len(digitalOutputs) {
		return errUnknownOutput
	}
	if IsShutdown() {
		return nil
	}
	return digitalOutputs[oid].Set(value != 0)
}

// ShutdownAllDigitalOut returns every output to its default level
func ShutdownAllDigitalOut() {
	for _, dout := range digitalOutputs {
		dout.held = dout.value
		_ = dout.Set(dout.defaultValue)
	}
}

// RestoreAllDigitalOut returns every output to its level before the
// shutdown
func RestoreAllDigitalOut() {
	for _, dout := range digitalOutputs {
		_ = dout.Set(dout.held)
	}
}

// resetDigitalOutputs forgets every output (tests)
func resetDigitalOutputs() {
	digitalOutputs = nil
}

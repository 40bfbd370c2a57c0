//go:build rp2040 || rp2350

package main

import (
	"machine"

	"leadscrew/core"
	"leadscrew/engine"
)

// Reference wiring. Encoder A interrupts, encoder B gives the direction.
const (
	encoderA = machine.GPIO2
	encoderB = machine.GPIO3
	stepPin  = 4
	dirPin   = 5
	enable   = machine.GPIO6

	lcdSDA  = machine.GPIO20
	lcdSCL  = machine.GPIO21
	lcdAddr = 0x27
	lcdCols = 20
	lcdRows = 4

	debugTX = machine.GPIO0
	debugRX = machine.GPIO1

	pulseWidthUS     = 5
	pulsePeriodUS    = 200
	statusIntervalMS = 250
)

var buttonPins = [5]core.GPIOPin{10, 11, 12, 13, 14}

func engineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.OID = 0
	return cfg
}

//go:build rp2040 || rp2350

package main

import (
	"machine"

	"leadscrew/display"
)

// initLCD brings up I2C0 and the display. A missing display is not fatal;
// the lathe runs headless.
func initLCD() display.Screen {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{
		Frequency: 100 * machine.KHz,
		SDA:       lcdSDA,
		SCL:       lcdSCL,
	})
	if err != nil {
		return nil
	}
	lcd, err := display.NewLCD(bus, lcdAddr, lcdCols, lcdRows)
	if err != nil {
		return nil
	}
	return lcd
}

// Package display renders the engine state on a character LCD
package display

import (
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/hd44780i2c"
)

// Screen is the part of a character LCD the views draw on.
// *hd44780i2c.Device satisfies it.
type Screen interface {
	ClearDisplay()
	SetCursor(x, y uint8)
	Print(data []byte)
	CursorOn(option bool)
	CursorBlink(option bool)
}

var _ Screen = (*hd44780i2c.Device)(nil)

// NewLCD configures an HD44780 behind a PCF8574 I2C expander.
// The bus must already be configured. Configure blocks for about a second
// while the controller powers up.
func NewLCD(bus drivers.I2C, addr uint8, cols, rows uint8) (*hd44780i2c.Device, error) {
	lcd := hd44780i2c.New(bus, addr)
	if err := lcd.Configure(hd44780i2c.Config{
		Width:  cols,
		Height: rows,
	}); err != nil {
		return nil, err
	}
	return &lcd, nil
}

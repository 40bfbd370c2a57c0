package display

import (
	"leadscrew/core"
	"leadscrew/engine"
)

const maxRows = 4

// Display owns the screen and draws either the status view or the setup
// menu. Rows are only rewritten when their text changes, since every
// character costs several I2C transfers.
type Display struct {
	screen Screen
	cols   uint8
	rows   uint8

	shown   [maxRows][]byte
	line    []byte
	inSetup bool
}

// New wraps a configured screen of cols x rows characters
func New(screen Screen, cols, rows uint8) *Display {
	if rows > maxRows {
		rows = maxRows
	}
	d := &Display{
		screen: screen,
		cols:   cols,
		rows:   rows,
		line:   make([]byte, 0, cols),
	}
	for i := range d.shown {
		d.shown[i] = make([]byte, 0, cols)
	}
	return d
}

// InSetup reports whether the setup menu owns the screen
func (d *Display) InSetup() bool {
	return d.inSetup
}

// ShowStatus draws the running view. It is skipped while the menu is open.
//
//	spindle: 123     4
//	Left*     60 rpm
//	carriage: 1200
//	      -3 1203      L
func (d *Display) ShowStatus(s engine.Snapshot) {
	if d.inSetup {
		return
	}

	b := append(d.line[:0], "spindle: "...)
	b = appendLeft(b, int64(s.Angle), 5)
	b = append(b, ' ')
	b = core.AppendPadded(b, int64(s.Revolutions), 3, ' ')
	d.putRow(0, b)

	b = append(d.line[:0], s.Mode.String()...)
	if s.PendingMode != s.Mode {
		b = append(b, '*')
	}
	b = padTo(b, 6)
	b = core.AppendPadded(b, int64(s.RPM), 6, ' ')
	b = append(b, " rpm"...)
	d.putRow(1, b)

	b = append(d.line[:0], "carriage: "...)
	b = core.AppendUint(b, uint64(s.Actual))
	d.putRow(2, b)

	b = core.AppendPadded(d.line[:0], int64(s.Lag), 8, ' ')
	b = append(b, ' ')
	b = core.AppendUint(b, uint64(s.Required))
	if s.Limited {
		b = padTo(b, int(d.cols)-1)
		b = append(b, 'L')
	}
	d.putRow(3, b)
}

// ShowSetup draws the setup menu with a blinking cursor on the edited
// column. It satisfies menu.SetupView.
//
//	Right 002/003
//
//	002/003 = 0.666666
func (d *Display) ShowSetup(mode engine.Mode, num, den uint8, column uint8) {
	if !d.inSetup {
		d.inSetup = true
		d.clear()
	}

	b := appendLeftString(d.line[:0], mode.String(), 5)
	b = append(b, ' ')
	b = appendFraction(b, num, den)
	d.putRow(0, b)

	b = appendFraction(d.line[:0], num, den)
	b = append(b, " = "...)
	b = appendRatio(b, num, den)
	d.putRow(d.ratioRow(), b)

	d.screen.SetCursor(column, 0)
	d.screen.CursorOn(true)
	d.screen.CursorBlink(true)
}

// EndSetup hides the cursor and hands the screen back to the status view
func (d *Display) EndSetup() {
	if !d.inSetup {
		return
	}
	d.inSetup = false
	d.screen.CursorOn(false)
	d.screen.CursorBlink(false)
	d.clear()
}

func (d *Display) ratioRow() uint8 {
	if d.rows >= 3 {
		return 2
	}
	return 1
}

func (d *Display) clear() {
	d.screen.ClearDisplay()
	for i := range d.shown {
		d.shown[i] = d.shown[i][:0]
	}
}

// putRow pads or truncates b to the screen width and writes it if it differs
// from what the row already shows
func (d *Display) putRow(row uint8, b []byte) {
	if row >= d.rows {
		return
	}
	if len(b) > int(d.cols) {
		b = b[:d.cols]
	}
	b = padTo(b, int(d.cols))
	if string(b) == string(d.shown[row]) {
		return
	}
	d.screen.SetCursor(0, row)
	d.screen.Print(b)
	d.shown[row] = append(d.shown[row][:0], b...)
}

func padTo(b []byte, width int) []byte {
	for len(b) < width {
		b = append(b, ' ')
	}
	return b
}

// appendLeft appends n left-aligned in width columns
func appendLeft(b []byte, n int64, width int) []byte {
	start := len(b)
	b = core.AppendInt(b, n)
	return padTo(b, start+width)
}

func appendLeftString(b []byte, s string, width int) []byte {
	start := len(b)
	b = append(b, s...)
	return padTo(b, start+width)
}

// appendFraction appends num/den as two zero-padded three-digit numbers
func appendFraction(b []byte, num, den uint8) []byte {
	b = core.AppendPadded(b, int64(num), 3, '0')
	b = append(b, '/')
	return core.AppendPadded(b, int64(den), 3, '0')
}

// appendRatio appends num/den truncated to six decimals. A zero denominator
// is only possible mid-edit and shows as dashes.
func appendRatio(b []byte, num, den uint8) []byte {
	if den == 0 {
		return append(b, "-.------"...)
	}
	micro := uint64(num) * 1000000 / uint64(den)
	b = core.AppendUint(b, micro/1000000)
	b = append(b, '.')
	return core.AppendPadded(b, int64(micro%1000000), 6, '0')
}

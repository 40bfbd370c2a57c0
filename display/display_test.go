package display

import (
	"strings"
	"testing"

	"leadscrew/engine"
)

// fakeScreen keeps a character grid and counts writes
type fakeScreen struct {
	cols, rows uint8
	grid       [][]byte
	x, y       uint8
	prints     int
	clears     int
	cursor     bool
	blink      bool
}

func newFakeScreen(cols, rows uint8) *fakeScreen {
	s := &fakeScreen{cols: cols, rows: rows}
	s.ClearDisplay()
	s.clears = 0
	return s
}

func (s *fakeScreen) ClearDisplay() {
	s.grid = make([][]byte, s.rows)
	for i := range s.grid {
		s.grid[i] = []byte(strings.Repeat(" ", int(s.cols)))
	}
	s.x, s.y = 0, 0
	s.clears++
}

func (s *fakeScreen) SetCursor(x, y uint8) { s.x, s.y = x, y }

func (s *fakeScreen) Print(data []byte) {
	s.prints++
	for _, c := range data {
		if s.x < s.cols {
			s.grid[s.y][s.x] = c
		}
		s.x++
	}
}

func (s *fakeScreen) CursorOn(option bool)    { s.cursor = option }
func (s *fakeScreen) CursorBlink(option bool) { s.blink = option }

func (s *fakeScreen) row(i int) string {
	return strings.TrimRight(string(s.grid[i]), " ")
}

func TestStatusView(t *testing.T) {
	screen := newFakeScreen(20, 4)
	d := New(screen, 20, 4)

	d.ShowStatus(engine.Snapshot{
		Angle:       123,
		Revolutions: 4,
		Mode:        engine.ModeLeft,
		PendingMode: engine.ModeRight,
		RPM:         60,
		Required:    1203,
		Actual:      1200,
		Lag:         -3,
		Limited:     true,
	})

	want := []string{
		"spindle: 123     4",
		"Left*     60 rpm",
		"carriage: 1200",
		"      -3 1203      L",
	}
	for i, w := range want {
		if got := screen.row(i); got != w {
			t.Errorf("row %d = %q, want %q", i, got, w)
		}
	}
}

func TestStatusSkipsUnchangedRows(t *testing.T) {
	screen := newFakeScreen(20, 4)
	d := New(screen, 20, 4)
	snap := engine.Snapshot{Angle: 10, RPM: 30}

	d.ShowStatus(snap)
	if screen.prints != 4 {
		t.Fatalf("first draw printed %d rows, want 4", screen.prints)
	}

	d.ShowStatus(snap)
	if screen.prints != 4 {
		t.Errorf("redraw of the same state printed %d rows", screen.prints-4)
	}

	snap.Angle = 11
	d.ShowStatus(snap)
	if screen.prints != 5 {
		t.Errorf("angle change printed %d rows, want 1", screen.prints-4)
	}
}

func TestSetupView(t *testing.T) {
	tests := []struct {
		name  string
		mode  engine.Mode
		num   uint8
		den   uint8
		row0  string
		ratio string
	}{
		{"one to one", engine.ModeLeft, 1, 1, "Left  001/001", "001/001 = 1.000000"},
		{"two thirds", engine.ModeRight, 2, 3, "Right 002/003", "002/003 = 0.666666"},
		{"large", engine.ModeLeft, 255, 7, "Left  255/007", "255/007 = 36.428571"},
		{"zero den", engine.ModeLeft, 5, 0, "Left  005/000", "005/000 = -.------"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			screen := newFakeScreen(20, 4)
			d := New(screen, 20, 4)

			d.ShowSetup(tt.mode, tt.num, tt.den, 7)
			if got := screen.row(0); got != tt.row0 {
				t.Errorf("row 0 = %q, want %q", got, tt.row0)
			}
			if got := screen.row(2); got != tt.ratio {
				t.Errorf("row 2 = %q, want %q", got, tt.ratio)
			}
			if screen.x != 7 || screen.y != 0 || !screen.cursor || !screen.blink {
				t.Errorf("cursor at (%d,%d) on=%v blink=%v", screen.x, screen.y, screen.cursor, screen.blink)
			}
		})
	}
}

func TestSetupOwnsScreen(t *testing.T) {
	screen := newFakeScreen(16, 2)
	d := New(screen, 16, 2)

	d.ShowStatus(engine.Snapshot{Angle: 1})
	d.ShowSetup(engine.ModeLeft, 1, 2, 0)
	if screen.clears != 1 || !d.InSetup() {
		t.Fatalf("clears %d, in setup %v", screen.clears, d.InSetup())
	}
	if got := screen.row(1); got != "001/002 = 0.5000" {
		t.Errorf("ratio row = %q", got)
	}

	d.ShowStatus(engine.Snapshot{Angle: 99})
	if got := screen.row(0); got != "Left  001/002" {
		t.Errorf("status drew over the menu: %q", got)
	}

	d.EndSetup()
	if screen.cursor || screen.blink || screen.clears != 2 {
		t.Errorf("cursor %v blink %v clears %d", screen.cursor, screen.blink, screen.clears)
	}
	d.ShowStatus(engine.Snapshot{Angle: 99})
	if got := screen.row(0); got != "spindle: 99" {
		t.Errorf("row 0 after setup = %q", got)
	}
}

type fakeBus struct {
	addrs map[uint16]int
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.addrs[addr]++
	return nil
}

func TestNewLCDRejectsEmptyGeometry(t *testing.T) {
	bus := &fakeBus{addrs: map[uint16]int{}}
	if _, err := NewLCD(bus, 0x27, 0, 4); err == nil {
		t.Fatal("NewLCD accepted zero columns")
	}
	if len(bus.addrs) != 0 {
		t.Error("NewLCD touched the bus before checking geometry")
	}
}

func TestNewLCDTalksToAddress(t *testing.T) {
	if testing.Short() {
		t.Skip("LCD power-up delay")
	}
	bus := &fakeBus{addrs: map[uint16]int{}}
	lcd, err := NewLCD(bus, 0x3f, 16, 2)
	if err != nil {
		t.Fatal(err)
	}
	if bus.addrs[0x3f] == 0 || len(bus.addrs) != 1 {
		t.Errorf("bus traffic %v, want only 0x3f", bus.addrs)
	}
	lcd.Print([]byte("ok"))
}

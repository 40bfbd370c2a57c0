// Package menu implements the ratio and direction setup menu and the
// button handling around it.
package menu

import "leadscrew/engine"

// State is a position of the setup menu
type State uint8

const (
	StateMode State = iota
	StateNum100
	StateNum10
	StateNum1
	StateDen100
	StateDen10
	StateDen1
	StateDone
)

type field uint8

const (
	fieldNone field = iota
	fieldNumerator
	fieldDenominator
)

// transition describes one menu state: where the cursor sits on the
// setup line, which digit Up and Down change, and where Next leads.
type transition struct {
	column uint8
	field  field
	place  int16
	next   State
}

var setupTable = [...]transition{
	StateMode:   {column: 0, next: StateNum100},
	StateNum100: {column: 6, field: fieldNumerator, place: 100, next: StateNum10},
	StateNum10:  {column: 7, field: fieldNumerator, place: 10, next: StateNum1},
	StateNum1:   {column: 8, field: fieldNumerator, place: 1, next: StateDen100},
	StateDen100: {column: 10, field: fieldDenominator, place: 100, next: StateDen10},
	StateDen10:  {column: 11, field: fieldDenominator, place: 10, next: StateDen1},
	StateDen1:   {column: 12, field: fieldDenominator, place: 1, next: StateDone},
	StateDone:   {column: 0, next: StateDone},
}

// Setup is the state of one pass through the setup menu
type Setup struct {
	state       State
	Mode        engine.Mode
	Numerator   uint8
	Denominator uint8
}

// NewSetup starts editing from the given values
func NewSetup(mode engine.Mode, num, den uint8) *Setup {
	return &Setup{Mode: mode, Numerator: num, Denominator: den}
}

// Press applies one debounced press. Next wins over Up, Up over Down.
// It returns true if anything changed.
func (s *Setup) Press(b Buttons) bool {
	if s.state == StateDone {
		return false
	}
	t := setupTable[s.state]

	switch {
	case b&ButtonNext != 0:
		s.state = t.next
		if s.state == StateDone && s.Denominator == 0 {
			s.Denominator = 1
		}
		return true
	case b&ButtonUp != 0:
		if s.state == StateMode {
			s.Mode = s.Mode.Toggle()
			return true
		}
		return s.adjust(t, t.place)
	case b&ButtonDown != 0:
		return s.adjust(t, -t.place)
	}
	return false
}

func (s *Setup) adjust(t transition, delta int16) bool {
	var v *uint8
	switch t.field {
	case fieldNumerator:
		v = &s.Numerator
	case fieldDenominator:
		v = &s.Denominator
	default:
		return false
	}
	old := *v
	*v = saturatingAdd(old, delta)
	return *v != old
}

// saturatingAdd adds delta and clamps to [0, 255]
func saturatingAdd(v uint8, delta int16) uint8 {
	r := int16(v) + delta
	switch {
	case r > 255:
		return 255
	case r < 0:
		return 0
	}
	return uint8(r)
}

func (s *Setup) State() State { return s.state }
func (s *Setup) Done() bool   { return s.state == StateDone }

// Column is the display column of the item being edited
func (s *Setup) Column() uint8 {
	return setupTable[s.state].column
}

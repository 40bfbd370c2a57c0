package engine

// Event is what a spindle edge asks of the accumulator
type Event int8

const (
	EventNone      Event = 0
	EventIncrement Event = 1
	EventDecrement Event = -1
)

// Spindle tracks the absolute spindle position from encoder edges.
//
// Carriage events are only produced while the position stays between the
// end of the first turn (lead-in) and the start of the limit turn
// (lead-out), and only for single-unit moves, so a clamped or wrapped
// jump never drags the carriage.
type Spindle struct {
	stepsPerTurn uint16

	angle       uint16
	revolutions uint32
	limit       uint32
	limited     bool

	active  Mode
	pending Mode

	counter uint32 // cumulative signed step count, wraps
}

// NewSpindle starts at angle 0 of revolution 0
func NewSpindle(stepsPerTurn uint16, mode Mode) Spindle {
	return Spindle{stepsPerTurn: stepsPerTurn, active: mode, pending: mode}
}

// Edge handles one encoder edge. physical is the level of the direction
// input sampled on the edge.
func (s *Spindle) Edge(physical bool) Event {
	if s.angle == 0 {
		s.active = s.pending
	}

	prev := s.Position()
	if physical != (s.active == ModeRight) {
		s.counter++
		s.angle++
		if s.angle == s.stepsPerTurn {
			s.angle = 0
			if !s.limited || s.revolutions != s.limit {
				s.revolutions++
			}
		}
	} else {
		s.counter--
		if s.angle > 0 {
			s.angle--
		} else {
			s.angle = s.stepsPerTurn - 1
			if s.revolutions > 0 {
				s.revolutions--
			}
		}
	}
	cur := s.Position()

	if !s.inWindow(prev) || !s.inWindow(cur) {
		return EventNone
	}
	switch cur - prev {
	case 1:
		return EventIncrement
	case -1:
		return EventDecrement
	}
	return EventNone
}

func (s *Spindle) inWindow(pos int64) bool {
	turn := int64(s.stepsPerTurn)
	if pos < turn {
		return false
	}
	return !s.limited || pos <= int64(s.limit)*turn
}

// Position is the absolute position in encoder units
func (s *Spindle) Position() int64 {
	return int64(s.revolutions)*int64(s.stepsPerTurn) + int64(s.angle)
}

// LatchLimit caps travel one turn past the current revolution. Only the
// first call has an effect.
func (s *Spindle) LatchLimit() bool {
	if s.limited {
		return false
	}
	s.limit = s.revolutions + 1
	s.limited = true
	return true
}

// SetMode requests a mode change; it takes effect at the next angle 0
func (s *Spindle) SetMode(m Mode) {
	s.pending = m
}

// Rezero returns to angle 0 of revolution 0 and clears the limit. The
// step counter keeps running so the RPM estimate is not disturbed.
func (s *Spindle) Rezero() {
	s.angle = 0
	s.revolutions = 0
	s.limit = 0
	s.limited = false
}

func (s *Spindle) Angle() uint16         { return s.angle }
func (s *Spindle) Revolutions() uint32   { return s.revolutions }
func (s *Spindle) Limit() (uint32, bool) { return s.limit, s.limited }
func (s *Spindle) Mode() Mode            { return s.active }
func (s *Spindle) PendingMode() Mode     { return s.pending }
func (s *Spindle) Counter() uint32       { return s.counter }

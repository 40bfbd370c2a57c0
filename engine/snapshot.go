package engine

// Snapshot is a consistent copy of the engine state for display and
// reporting.
type Snapshot struct {
	Angle       uint16
	Revolutions uint32
	Limit       uint32
	Limited     bool
	Mode        Mode
	PendingMode Mode

	Required  uint32
	Actual    uint32
	Lag       int32
	Armed     bool
	Remainder int32

	RPM   int32
	Steps uint32

	Numerator   uint8
	Denominator uint8
}

func snapshotOf(s *state) Snapshot {
	limit, limited := s.spindle.Limit()
	num, den := s.accumulator.Ratio()
	return Snapshot{
		Angle:       s.spindle.Angle(),
		Revolutions: s.spindle.Revolutions(),
		Limit:       limit,
		Limited:     limited,
		Mode:        s.spindle.Mode(),
		PendingMode: s.spindle.PendingMode(),
		Required:    s.carriage.Required(),
		Actual:      s.carriage.Actual(),
		Lag:         s.carriage.Lag(),
		Armed:       s.carriage.Armed(),
		Remainder:   s.accumulator.Remainder(),
		RPM:         s.rpm.RPM(),
		Steps:       s.spindle.Counter(),
		Numerator:   num,
		Denominator: den,
	}
}

// Converged reports whether the carriage had caught up when the snapshot
// was taken
func (s Snapshot) Converged() bool {
	return s.Lag == 0
}

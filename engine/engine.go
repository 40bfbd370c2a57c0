// Package engine keeps a stepper-driven carriage in a fixed rational ratio
// with the spindle position.
//
// Three interrupt sources drive an Engine: encoder edges, pulse timer
// completions and a periodic tick. Each entry point runs in one critical
// section over the whole engine state; the pulse timer is only armed after
// that section is left, because arming touches the timer scheduler.
package engine

import "leadscrew/core"

const (
	DefaultStepsPerTurn   = 600
	DefaultTickUS         = 2000
	DefaultRPMWindowTicks = 500
)

// PulseTimer is the one-shot pulse capability. Pulse runs inside the
// engine's critical section and must not block; Arm requests a call to
// OnPulseComplete once the next pulse may be issued.
type PulseTimer interface {
	Pulser
	Arm()
}

// Config holds the engine parameters fixed at construction
type Config struct {
	OID            uint8
	StepsPerTurn   uint16
	Numerator      uint8
	Denominator    uint8
	Mode           Mode
	TickUS         uint32
	RPMWindowTicks uint16
}

// DefaultConfig is a 600 line encoder at 1:1 sampled once a second
func DefaultConfig() Config {
	return Config{
		StepsPerTurn:   DefaultStepsPerTurn,
		Numerator:      1,
		Denominator:    1,
		Mode:           ModeLeft,
		TickUS:         DefaultTickUS,
		RPMWindowTicks: DefaultRPMWindowTicks,
	}
}

type state struct {
	spindle     Spindle
	accumulator Accumulator
	carriage    Carriage
	rpm         RPMEstimator
}

// Engine is the synchronization context of one lathe
type Engine struct {
	oid    uint8
	pulser PulseTimer
	shared *core.Shared[state]
}

// New builds an engine. The caller routes the pulser's completion to
// OnPulseComplete.
func New(cfg Config, pulser PulseTimer) *Engine {
	if cfg.StepsPerTurn < 2 {
		cfg.StepsPerTurn = DefaultStepsPerTurn
	}
	if cfg.TickUS == 0 {
		cfg.TickUS = DefaultTickUS
	}
	if cfg.RPMWindowTicks == 0 {
		cfg.RPMWindowTicks = DefaultRPMWindowTicks
	}

	return &Engine{
		oid:    cfg.OID,
		pulser: pulser,
		shared: core.NewShared(state{
			spindle:     NewSpindle(cfg.StepsPerTurn, cfg.Mode),
			accumulator: NewAccumulator(cfg.Numerator, cfg.Denominator),
			rpm:         NewRPMEstimator(cfg.StepsPerTurn, cfg.TickUS, cfg.RPMWindowTicks),
		}),
	}
}

// OnEncoderEdge is the encoder interrupt entry point
func (e *Engine) OnEncoderEdge(physicalDirection bool) {
	g := e.shared.Lock()
	s := g.Value()

	before := s.spindle.Mode()
	var delta int32
	switch s.spindle.Edge(physicalDirection) {
	case EventIncrement:
		delta = s.accumulator.Increment()
	case EventDecrement:
		delta = s.accumulator.Decrement()
	}
	kick := s.carriage.Retarget(delta)

	if s.spindle.Mode() != before {
		core.RecordTiming(core.EvtModeCommit, e.oid, core.GetTime(), uint32(s.spindle.Mode()), 0)
	}
	if delta != 0 {
		core.RecordTiming(core.EvtRetarget, e.oid, core.GetTime(), s.carriage.Required(), s.carriage.Actual())
	}
	g.Unlock()

	if kick {
		e.pulser.Arm()
	}
}

// OnPulseComplete is the pulse timer completion entry point
func (e *Engine) OnPulseComplete() {
	g := e.shared.Lock()
	rearm := g.Value().carriage.Retire(e.pulser)
	g.Unlock()

	if rearm {
		e.pulser.Arm()
	}
}

// OnTick is the periodic tick entry point
func (e *Engine) OnTick() {
	g := e.shared.Lock()
	s := g.Value()
	s.rpm.Tick(s.spindle.Counter())
	g.Unlock()
}

// ConfigureRatio sets a new ratio and re-zeroes the remainder.
// A zero denominator is treated as 1.
func (e *Engine) ConfigureRatio(num, den uint8) {
	if den == 0 {
		den = 1
	}
	g := e.shared.Lock()
	g.Value().accumulator.Configure(num, den)
	g.Unlock()
	core.RecordTiming(core.EvtRatio, e.oid, core.GetTime(), uint32(num), uint32(den))
}

// SetMode requests a direction mode; it applies at the next turn boundary
func (e *Engine) SetMode(m Mode) {
	g := e.shared.Lock()
	g.Value().spindle.SetMode(m)
	g.Unlock()
}

// RequestLimitLatch caps travel one turn past the current revolution.
// It returns false if a limit was already latched.
func (e *Engine) RequestLimitLatch() bool {
	g := e.shared.Lock()
	sp := &g.Value().spindle
	latched := sp.LatchLimit()
	limit, _ := sp.Limit()
	g.Unlock()

	if latched {
		core.RecordTiming(core.EvtLimitLatch, e.oid, core.GetTime(), limit, 0)
	}
	return latched
}

// Reset re-zeroes synchronization: the remainder is dropped, the carriage
// holds where it is, the limit is cleared and the spindle position starts
// again from angle 0 of revolution 0.
func (e *Engine) Reset() {
	g := e.shared.Lock()
	s := g.Value()
	s.accumulator.Reset()
	s.carriage.Hold()
	s.spindle.Rezero()
	actual := s.carriage.Actual()
	g.Unlock()

	core.RecordTiming(core.EvtSyncReset, e.oid, core.GetTime(), actual, 0)
}

// Resume restarts the carriage after the pulse timer was stopped. Demand
// that built up meanwhile is caught up.
func (e *Engine) Resume() {
	g := e.shared.Lock()
	kick := g.Value().carriage.Rearm()
	g.Unlock()

	if kick {
		e.pulser.Arm()
	}
}

// Converged reports whether the carriage has no outstanding steps
func (e *Engine) Converged() bool {
	g := e.shared.Lock()
	done := g.Value().carriage.Converged()
	g.Unlock()
	return done
}

// Snapshot copies every displayed value in one critical section
func (e *Engine) Snapshot() Snapshot {
	g := e.shared.Lock()
	snap := snapshotOf(g.Value())
	g.Unlock()
	return snap
}

// Package sim runs the synchronization engine against a virtual spindle.
// The engine, pulse timer and scheduler are the production ones; only the
// clock and the encoder are simulated.
package sim

import (
	"errors"
	"fmt"

	"leadscrew/core"
	"leadscrew/engine"
)

var (
	ErrNoSegments = errors.New("scenario has no segments")
	ErrTooLong    = errors.New("scenario longer than the clock range")
)

// maxDurationUS keeps every wake time inside half the 32-bit clock
const maxDurationUS = 1 << 31

// Segment spins the spindle at a constant speed. Negative RPM turns it
// backward; zero holds it still.
type Segment struct {
	RPM        int32
	DurationUS uint64
}

// Action is an operator input applied at a point in time
type Action uint8

const (
	ActionLatch Action = iota
	ActionReset
	ActionToggleMode
	ActionRatio
)

func (a Action) String() string {
	switch a {
	case ActionLatch:
		return "latch"
	case ActionReset:
		return "reset"
	case ActionToggleMode:
		return "toggle-mode"
	case ActionRatio:
		return "ratio"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Event applies an action at AtUS. Numerator and Denominator are used by
// ActionRatio.
type Event struct {
	AtUS        uint64
	Action      Action
	Numerator   uint8
	Denominator uint8
}

// Scenario is one simulated run
type Scenario struct {
	Engine        engine.Config // zero value means engine.DefaultConfig()
	PulsePeriodUS uint32
	SampleUS      uint32
	Segments      []Segment
	Events        []Event
}

// Sample is one trace point
type Sample struct {
	TimeUS   uint64
	Spindle  int64
	Required uint32
	Actual   uint32
}

// Result summarizes a run
type Result struct {
	Final      engine.Snapshot
	Trace      []Sample
	Edges      uint64
	Steps      uint32
	Reversals  uint32
	Position   int64 // net carriage travel seen by the stepper backend
	MaxLag     int32
	DurationUS uint64
}

// Duration returns the total length of the segments
func (sc *Scenario) Duration() uint64 {
	var total uint64
	for _, s := range sc.Segments {
		total += s.DurationUS
	}
	return total
}

// runner holds the simulated hardware of one run
type runner struct {
	sc      *Scenario
	eng     *engine.Engine
	pulser  *core.StepPulser
	backend *recorder
	now     uint64
	result  Result

	encoder encoderTimer
	tick    core.Timer
	sample  core.Timer
	events  []eventTimer
}

type eventTimer struct {
	timer core.Timer
	event Event
}

// Run plays a scenario from a cleared scheduler and a zeroed clock. It
// takes over the global core scheduler for the duration of the run.
func Run(sc Scenario) (*Result, error) {
	if len(sc.Segments) == 0 {
		return nil, ErrNoSegments
	}
	end := sc.Duration()
	if end >= maxDurationUS {
		return nil, fmt.Errorf("%w: %d us", ErrTooLong, end)
	}
	if sc.PulsePeriodUS == 0 {
		sc.PulsePeriodUS = 200
	}
	if sc.SampleUS == 0 {
		sc.SampleUS = 10000
	}
	if sc.Engine.StepsPerTurn == 0 {
		sc.Engine = engine.DefaultConfig()
	}

	core.ClearTimers()
	core.TimerInit()
	defer core.ClearTimers()

	r := &runner{sc: &sc, backend: &recorder{}}
	r.pulser = core.NewStepPulser(sc.Engine.OID, r.backend, core.TimerFromUS(sc.PulsePeriodUS))
	r.eng = engine.New(sc.Engine, r.pulser)
	r.pulser.SetCompletionHandler(r.eng.OnPulseComplete)

	r.encoder = encoderTimer{runner: r, segments: sc.Segments}
	r.encoder.timer.Handler = r.encoder.edgeEvent
	if wake, ok := r.encoder.next(); ok {
		r.encoder.timer.WakeTime = uint32(wake)
		core.ScheduleTimer(&r.encoder.timer)
	}

	tickUS := sc.Engine.TickUS
	if tickUS == 0 {
		tickUS = engine.DefaultTickUS
	}
	r.tick.WakeTime = core.TimerFromUS(tickUS)
	r.tick.Handler = func(t *core.Timer) uint8 {
		r.eng.OnTick()
		t.WakeTime += core.TimerFromUS(tickUS)
		return core.SF_RESCHEDULE
	}
	core.ScheduleTimer(&r.tick)

	r.record()
	r.sample.WakeTime = core.TimerFromUS(sc.SampleUS)
	r.sample.Handler = func(t *core.Timer) uint8 {
		r.record()
		t.WakeTime += core.TimerFromUS(sc.SampleUS)
		return core.SF_RESCHEDULE
	}
	core.ScheduleTimer(&r.sample)

	r.events = make([]eventTimer, len(sc.Events))
	for i := range sc.Events {
		et := &r.events[i]
		et.event = sc.Events[i]
		et.timer.WakeTime = uint32(et.event.AtUS)
		et.timer.Handler = func(t *core.Timer) uint8 {
			r.apply(et.event)
			return core.SF_DONE
		}
		core.ScheduleTimer(&et.timer)
	}

	r.advance(end)
	// Let the carriage finish the steps it still owes
	r.drain(end + maxDrainUS(sc))
	r.pulser.Stop()

	r.record()
	r.result.Final = r.eng.Snapshot()
	r.result.Steps = r.backend.steps
	r.result.Reversals = r.backend.reversal
	r.result.Position = r.backend.position
	r.result.DurationUS = r.now
	return &r.result, nil
}

// advance runs every timer due up to end
func (r *runner) advance(end uint64) {
	for {
		wake, ok := core.NextWakeTime()
		if !ok {
			break
		}
		at := r.now
		if d := int32(wake - uint32(r.now)); d > 0 {
			at += uint64(d)
		}
		if at > end {
			break
		}
		r.now = at
		core.SetTime(uint32(at))
		core.ProcessTimers()
	}
	r.now = end
	core.SetTime(uint32(end))
}

// drain keeps only the pulse timer running until the carriage converges
func (r *runner) drain(limit uint64) {
	core.CancelTimer(&r.encoder.timer)
	core.CancelTimer(&r.sample)
	for i := range r.events {
		core.CancelTimer(&r.events[i].timer)
	}
	for r.now < limit && r.pulser.Armed() {
		wake, ok := core.NextWakeTime()
		if !ok {
			return
		}
		if d := int32(wake - uint32(r.now)); d > 0 {
			r.now += uint64(d)
		}
		core.SetTime(uint32(r.now))
		core.ProcessTimers()
	}
}

// maxDrainUS bounds the drain to the time the worst lag could take
func maxDrainUS(sc Scenario) uint64 {
	return uint64(sc.PulsePeriodUS) * uint64(sc.Engine.StepsPerTurn) * 256
}

func (r *runner) record() {
	s := r.eng.Snapshot()
	r.result.Trace = append(r.result.Trace, Sample{
		TimeUS:   r.now,
		Spindle:  int64(s.Revolutions)*int64(r.sc.Engine.StepsPerTurn) + int64(s.Angle),
		Required: s.Required,
		Actual:   s.Actual,
	})
}

func (r *runner) apply(ev Event) {
	switch ev.Action {
	case ActionLatch:
		r.eng.RequestLimitLatch()
	case ActionReset:
		r.eng.Reset()
	case ActionToggleMode:
		r.eng.SetMode(r.eng.Snapshot().PendingMode.Toggle())
	case ActionRatio:
		r.eng.ConfigureRatio(ev.Numerator, ev.Denominator)
	}
}

// encoderTimer emits spindle edges at the speed of the current segment.
// Edge k of a segment lands at start + k*60e6/(rpm*steps) so rounding never
// accumulates across a long segment.
type encoderTimer struct {
	runner   *runner
	segments []Segment
	timer    core.Timer

	index int
	start uint64
	count uint64
}

// next returns the time of the next edge, moving through segments as they
// run out
func (e *encoderTimer) next() (uint64, bool) {
	steps := uint64(e.runner.sc.Engine.StepsPerTurn)
	for e.index < len(e.segments) {
		seg := e.segments[e.index]
		if seg.RPM != 0 {
			rpm := uint64(abs32(seg.RPM))
			at := e.start + (e.count+1)*60_000_000/(rpm*steps)
			if at < e.start+seg.DurationUS {
				e.count++
				return at, true
			}
		}
		e.start += seg.DurationUS
		e.count = 0
		e.index++
	}
	return 0, false
}

func (e *encoderTimer) edgeEvent(t *core.Timer) uint8 {
	forward := e.segments[e.index].RPM > 0
	e.runner.eng.OnEncoderEdge(forward)
	e.runner.result.Edges++

	lag := e.runner.eng.Snapshot().Lag
	if abs32(lag) > abs32(e.runner.result.MaxLag) {
		e.runner.result.MaxLag = lag
	}

	wake, ok := e.next()
	if !ok {
		return core.SF_DONE
	}
	t.WakeTime = uint32(wake)
	return core.SF_RESCHEDULE
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

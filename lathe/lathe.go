// Package lathe assembles the firmware of one lathe from its parts: the
// synchronization engine behind a step pulser, the status link, the button
// controller and the character display. Targets supply the hardware
// (stepper backend, GPIO driver, screen) and feed encoder edges in.
package lathe

import (
	"errors"

	"leadscrew/core"
	"leadscrew/display"
	"leadscrew/engine"
	"leadscrew/link"
	"leadscrew/menu"
)

const (
	DefaultPulsePeriodUS    = 200
	DefaultStatusIntervalMS = 250
	DefaultRefreshUS        = 100000
)

var (
	ErrNoBackend = errors.New("lathe: no stepper backend")
	ErrNoGPIO    = errors.New("lathe: buttons and enable need a GPIO driver")
)

// Options describes the hardware of one lathe. A nil Screen runs without a
// display; a nil GPIO runs without buttons.
type Options struct {
	Engine           engine.Config
	PulsePeriodUS    uint32
	StatusIntervalMS uint32
	RefreshUS        uint32

	Backend core.StepperBackend
	GPIO    core.GPIODriver
	Enable  *core.GPIOPin // active-low driver enable, released on shutdown
	Buttons *[5]core.GPIOPin
	Screen  display.Screen
	Cols    uint8
	Rows    uint8
}

// Lathe is the running firmware
type Lathe struct {
	Engine     *engine.Engine
	Pulser     *core.StepPulser
	Link       *link.Link
	Enable     *core.DigitalOut
	Controller *menu.Controller
	Display    *display.Display

	tick         core.Timer
	tickInterval uint32

	refresh         core.Timer
	refreshInterval uint32
	redraw          bool

	running bool
}

// gatedPulser holds the carriage still while the firmware is shut down.
// Required keeps following the spindle, so clearing the shutdown resumes
// catching up unless the operator resets first. The carriage still counts
// a refused Arm as armed; Engine.Resume settles that on clear.
type gatedPulser struct {
	*core.StepPulser
}

func (g gatedPulser) Arm() {
	if core.IsShutdown() {
		return
	}
	g.StepPulser.Arm()
}

// RegisterCommands fills the command registry and builds the dictionary.
// Call it once before the transport starts receiving.
func RegisterCommands(cfg engine.Config, statusIntervalMS uint32) {
	core.InitCoreCommands()
	core.InitGPIOCommands()
	link.InitCommands()
	link.Describe(cfg, statusIntervalMS)
	core.GetGlobalDictionary().BuildDictionary()
}

// New builds a lathe. The backend must already be initialised.
func New(opts Options) (*Lathe, error) {
	if opts.Backend == nil {
		return nil, ErrNoBackend
	}
	if (opts.Buttons != nil || opts.Enable != nil) && opts.GPIO == nil {
		return nil, ErrNoGPIO
	}
	if opts.Engine.StepsPerTurn == 0 {
		opts.Engine = engine.DefaultConfig()
	}
	if opts.PulsePeriodUS == 0 {
		opts.PulsePeriodUS = DefaultPulsePeriodUS
	}
	if opts.StatusIntervalMS == 0 {
		opts.StatusIntervalMS = DefaultStatusIntervalMS
	}
	if opts.RefreshUS == 0 {
		opts.RefreshUS = DefaultRefreshUS
	}
	tickUS := opts.Engine.TickUS
	if tickUS == 0 {
		tickUS = engine.DefaultTickUS
	}

	l := &Lathe{
		Pulser:          core.NewStepPulser(opts.Engine.OID, opts.Backend, core.TimerFromUS(opts.PulsePeriodUS)),
		tickInterval:    core.TimerFromUS(tickUS),
		refreshInterval: core.TimerFromUS(opts.RefreshUS),
	}
	l.Engine = engine.New(opts.Engine, gatedPulser{l.Pulser})
	l.Pulser.SetCompletionHandler(l.Engine.OnPulseComplete)
	l.Link = link.New(l.Engine, core.TimerFromUS(opts.StatusIntervalMS*1000))

	if opts.Enable != nil {
		core.SetGPIODriver(opts.GPIO)
		enable, err := core.NewDigitalOut(*opts.Enable, false, true)
		if err != nil {
			return nil, err
		}
		l.Enable = enable
	}
	if opts.Screen != nil {
		l.Display = display.New(opts.Screen, opts.Cols, opts.Rows)
	}
	if opts.Buttons != nil {
		reader, err := menu.NewButtonReader(opts.GPIO, *opts.Buttons)
		if err != nil {
			return nil, err
		}
		var view menu.SetupView
		if l.Display != nil {
			view = l.Display
		}
		l.Controller = menu.NewController(reader, l.Engine, view, 0)
	}

	l.tick.Handler = l.tickEvent
	l.refresh.Handler = l.refreshEvent
	core.RegisterShutdownHandler(l.Pulser.Stop)
	core.RegisterClearShutdownHandler(l.resume)
	return l, nil
}

// Start schedules the tick, status, button and display timers
func (l *Lathe) Start() {
	l.running = true
	now := core.GetTime()
	l.tick.WakeTime = now + l.tickInterval
	core.ScheduleTimer(&l.tick)
	l.Link.Start()
	if l.Controller != nil {
		l.Controller.Start()
	}
	if l.Display != nil {
		l.redraw = true
		l.refresh.WakeTime = now + l.refreshInterval
		core.ScheduleTimer(&l.refresh)
	}
}

// Stop cancels every timer and halts the stepper
func (l *Lathe) Stop() {
	l.running = false
	core.CancelTimer(&l.tick)
	core.CancelTimer(&l.refresh)
	l.Link.Stop()
	if l.Controller != nil {
		l.Controller.Stop()
	}
	l.Pulser.Stop()
}

// OnEncoderEdge forwards an encoder edge. Safe from interrupt context.
func (l *Lathe) OnEncoderEdge(physicalDirection bool) {
	l.Engine.OnEncoderEdge(physicalDirection)
}

// Service does the slow work the main loop owns: redrawing the display.
// Screen writes take milliseconds on I2C, so they never run from a timer.
func (l *Lathe) Service() {
	if !l.redraw || l.Display == nil {
		return
	}
	l.redraw = false
	l.Display.ShowStatus(l.Engine.Snapshot())
}

// resume restarts the carriage once a shutdown is cleared
func (l *Lathe) resume() {
	if l.running {
		l.Engine.Resume()
	}
}

func (l *Lathe) tickEvent(t *core.Timer) uint8 {
	l.Engine.OnTick()
	t.WakeTime += l.tickInterval
	return core.SF_RESCHEDULE
}

func (l *Lathe) refreshEvent(t *core.Timer) uint8 {
	l.redraw = true
	t.WakeTime += l.refreshInterval
	return core.SF_RESCHEDULE
}

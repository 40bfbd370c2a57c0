package menu

import (
	"leadscrew/core"
	"leadscrew/engine"
)

// DefaultPollInterval is the button sampling period (20 ms)
const DefaultPollInterval = 20000

// Engine is what the controller drives; *engine.Engine satisfies it
type Engine interface {
	ConfigureRatio(num, den uint8)
	SetMode(m engine.Mode)
	RequestLimitLatch() bool
	Reset()
	Snapshot() engine.Snapshot
}

// SetupView draws the setup menu
type SetupView interface {
	ShowSetup(mode engine.Mode, num, den uint8, column uint8)
	EndSetup()
}

// Controller polls the buttons from a scheduler timer. While the setup
// menu is open presses edit it; otherwise they act on the running engine.
type Controller struct {
	reader   *ButtonReader
	engine   Engine
	view     SetupView
	interval uint32

	setup *Setup
	timer core.Timer
}

// NewController builds a controller polling every interval ticks
func NewController(reader *ButtonReader, eng Engine, view SetupView, interval uint32) *Controller {
	if interval == 0 {
		interval = DefaultPollInterval
	}
	c := &Controller{
		reader:   reader,
		engine:   eng,
		view:     view,
		interval: interval,
	}
	c.timer.Handler = c.pollEvent
	return c
}

// Start schedules the first poll
func (c *Controller) Start() {
	c.timer.WakeTime = core.GetTime() + c.interval
	core.ScheduleTimer(&c.timer)
}

// Stop cancels polling
func (c *Controller) Stop() {
	core.CancelTimer(&c.timer)
}

func (c *Controller) pollEvent(t *core.Timer) uint8 {
	c.Poll()
	t.WakeTime += c.interval
	return core.SF_RESCHEDULE
}

// EnterSetup opens the menu with the engine's current settings.
// It is refused while the carriage still has steps to make.
func (c *Controller) EnterSetup() bool {
	snap := c.engine.Snapshot()
	if !snap.Converged() {
		return false
	}
	c.setup = NewSetup(snap.PendingMode, snap.Numerator, snap.Denominator)
	c.redraw()
	return true
}

// InSetup reports whether the setup menu is open
func (c *Controller) InSetup() bool {
	return c.setup != nil
}

// Poll runs one sample of the buttons
func (c *Controller) Poll() {
	pressed := c.reader.Poll()
	if pressed == 0 {
		return
	}
	if c.setup != nil {
		c.handleSetup(pressed)
		return
	}
	c.handleRun(pressed)
}

func (c *Controller) handleSetup(pressed Buttons) {
	if !c.setup.Press(pressed) {
		return
	}
	if !c.setup.Done() {
		c.redraw()
		return
	}

	s := c.setup
	c.setup = nil
	c.engine.ConfigureRatio(s.Numerator, s.Denominator)
	c.engine.SetMode(s.Mode)
	if c.view != nil {
		c.view.EndSetup()
	}
	core.DebugPrintln("[MENU] ratio " + itoa(int(s.Numerator)) + "/" + itoa(int(s.Denominator)) + " mode " + s.Mode.String())
}

func (c *Controller) handleRun(pressed Buttons) {
	switch {
	case pressed&ButtonSetup != 0:
		c.EnterSetup()
	case pressed&ButtonMode != 0:
		// Toggle what was last asked for, so two presses within one
		// turn cancel out
		c.engine.SetMode(c.engine.Snapshot().PendingMode.Toggle())
	case pressed&ButtonLatch != 0:
		c.engine.RequestLimitLatch()
	case pressed&ButtonResync != 0:
		c.engine.Reset()
	}
}

func (c *Controller) redraw() {
	if c.view == nil || c.setup == nil {
		return
	}
	c.view.ShowSetup(c.setup.Mode, c.setup.Numerator, c.setup.Denominator, c.setup.Column())
}

func itoa(n int) string {
	return string(core.AppendInt(nil, int64(n)))
}

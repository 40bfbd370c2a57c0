package lathe

import (
	"strings"
	"testing"

	"leadscrew/core"
	"leadscrew/engine"
)

type countingBackend struct {
	steps   int
	reverse bool
	stops   int
}

func (b *countingBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error { return nil }
func (b *countingBackend) Step()                                                       { b.steps++ }
func (b *countingBackend) SetDirection(dir bool)                                       { b.reverse = dir }
func (b *countingBackend) Stop()                                                       { b.stops++ }
func (b *countingBackend) GetName() string                                             { return "counting" }

type gridScreen struct {
	grid [4][]byte
	x, y uint8
}

func newGridScreen() *gridScreen {
	s := &gridScreen{}
	s.ClearDisplay()
	return s
}

func (s *gridScreen) ClearDisplay() {
	for i := range s.grid {
		s.grid[i] = []byte(strings.Repeat(" ", 20))
	}
}
func (s *gridScreen) SetCursor(x, y uint8) { s.x, s.y = x, y }
func (s *gridScreen) Print(data []byte) {
	for _, c := range data {
		if int(s.x) < len(s.grid[s.y]) {
			s.grid[s.y][s.x] = c
		}
		s.x++
	}
}
func (s *gridScreen) CursorOn(bool)    {}
func (s *gridScreen) CursorBlink(bool) {}

func (s *gridScreen) row(i int) string {
	return strings.TrimRight(string(s.grid[i]), " ")
}

var (
	pins      = [5]core.GPIOPin{10, 11, 12, 13, 14}
	enablePin = core.GPIOPin(6)
)

func setup(t *testing.T) (*Lathe, *countingBackend, *gridScreen, *core.MemGPIO) {
	t.Helper()
	core.ClearTimers()
	core.TimerInit()
	core.SetTime(0)
	t.Cleanup(func() {
		core.ClearTimers()
		core.ResetFirmwareState()
	})

	RegisterCommands(engine.DefaultConfig(), DefaultStatusIntervalMS)

	backend := &countingBackend{}
	screen := newGridScreen()
	gpio := core.NewMemGPIO()
	l, err := New(Options{
		Engine:  engine.DefaultConfig(),
		Backend: backend,
		GPIO:    gpio,
		Enable:  &enablePin,
		Buttons: &pins,
		Screen:  screen,
		Cols:    20,
		Rows:    4,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, backend, screen, gpio
}

// spin feeds n forward edges one millisecond apart, running timers after each
func spin(l *Lathe, start uint32, n int) uint32 {
	now := start
	for i := 0; i < n; i++ {
		now += 1000
		core.SetTime(now)
		l.OnEncoderEdge(true)
		core.ProcessTimers()
	}
	now += 1000
	core.SetTime(now)
	core.ProcessTimers()
	return now
}

// settle runs timers in 100 us steps for d microseconds
func settle(start, d uint32) uint32 {
	now := start
	for end := start + d; now < end; {
		now += 100
		core.SetTime(now)
		core.ProcessTimers()
	}
	return now
}

func clearShutdown(t *testing.T) {
	t.Helper()
	cmd, ok := core.GetGlobalRegistry().GetCommandByName("clear_shutdown")
	if !ok {
		t.Fatal("clear_shutdown not registered")
	}
	var data []byte
	if err := core.DispatchCommand(cmd.ID, &data); err != nil {
		t.Fatalf("clear_shutdown: %v", err)
	}
	if core.IsShutdown() {
		t.Fatal("still shut down")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Options{}); err != ErrNoBackend {
		t.Errorf("no backend: got %v, want %v", err, ErrNoBackend)
	}
	if _, err := New(Options{Backend: &countingBackend{}, Buttons: &pins}); err != ErrNoGPIO {
		t.Errorf("buttons without gpio: got %v, want %v", err, ErrNoGPIO)
	}
}

func TestRegisterCommands(t *testing.T) {
	RegisterCommands(engine.DefaultConfig(), DefaultStatusIntervalMS)

	reg := core.GetGlobalRegistry()
	if cmd, ok := reg.GetCommandByName("identify"); !ok || cmd.ID != 1 {
		t.Errorf("identify: got %+v %v, want ID 1", cmd, ok)
	}
	for _, name := range []string{"get_status", "set_ratio", "set_mode", "latch_limit", "reset_sync", "leadscrew_status"} {
		if _, ok := reg.GetCommandByName(name); !ok {
			t.Errorf("%s not registered", name)
		}
	}
}

func TestLatheFollowsSpindle(t *testing.T) {
	l, backend, screen, _ := setup(t)
	l.Start()
	defer l.Stop()

	// The first turn is lead-in and moves nothing
	spin(l, 0, 610)

	snap := l.Engine.Snapshot()
	if snap.Required != 10 || snap.Actual != 10 {
		t.Fatalf("required/actual: got %d/%d, want 10/10", snap.Required, snap.Actual)
	}
	if backend.steps != 10 || backend.reverse {
		t.Errorf("backend: got %d steps reverse=%v, want 10 forward", backend.steps, backend.reverse)
	}
	if snap.Revolutions != 1 || snap.Angle != 10 {
		t.Errorf("spindle: got angle %d rev %d, want 10/1", snap.Angle, snap.Revolutions)
	}

	l.Service()
	if got := screen.row(2); got != "carriage: 10" {
		t.Errorf("display row 2: got %q", got)
	}
	// Nothing to redraw until the refresh timer fires again
	screen.ClearDisplay()
	l.Service()
	if got := screen.row(2); got != "" {
		t.Errorf("display redrawn without refresh: %q", got)
	}
}

func TestShutdownHoldsCarriage(t *testing.T) {
	l, backend, _, gpio := setup(t)
	l.Start()
	defer l.Stop()

	now := spin(l, 0, 610)
	if level, _ := gpio.GetPin(enablePin); level {
		t.Fatal("driver not enabled before shutdown")
	}
	core.TryShutdown("test")
	if level, _ := gpio.GetPin(enablePin); !level {
		t.Error("shutdown left the driver enabled")
	}
	spin(l, now, 10)

	snap := l.Engine.Snapshot()
	if snap.Required != 20 {
		t.Errorf("required: got %d, want 20", snap.Required)
	}
	if snap.Actual != 10 || backend.steps != 10 {
		t.Errorf("carriage moved during shutdown: actual %d steps %d", snap.Actual, backend.steps)
	}
	if backend.stops == 0 {
		t.Error("shutdown did not stop the backend")
	}
}

func TestClearShutdownResumesCarriage(t *testing.T) {
	l, backend, _, gpio := setup(t)
	l.Start()
	defer l.Stop()

	now := spin(l, 0, 610)
	core.TryShutdown("test")
	now = spin(l, now, 10)
	if snap := l.Engine.Snapshot(); snap.Required != 20 || snap.Actual != 10 {
		t.Fatalf("during shutdown: required %d actual %d, want 20/10", snap.Required, snap.Actual)
	}

	clearShutdown(t)
	if level, _ := gpio.GetPin(enablePin); level {
		t.Error("driver still disabled after clear")
	}
	now = spin(l, now, 10)
	settle(now, 5000)

	snap := l.Engine.Snapshot()
	if snap.Required != 30 || snap.Actual != 30 || snap.Armed {
		t.Errorf("after clear: required %d actual %d armed %v, want 30/30 idle",
			snap.Required, snap.Actual, snap.Armed)
	}
	if backend.steps != 30 {
		t.Errorf("backend steps: got %d, want 30", backend.steps)
	}
}

func TestResetDuringShutdown(t *testing.T) {
	l, backend, _, _ := setup(t)
	l.Start()
	defer l.Stop()

	now := spin(l, 0, 610)
	core.TryShutdown("test")
	now = spin(l, now, 5)
	l.Engine.Reset()
	clearShutdown(t)

	// Reset dropped the demand built up while shut down
	now = settle(now, 2000)
	if backend.steps != 10 {
		t.Fatalf("carriage caught up after reset: %d steps", backend.steps)
	}

	// The spindle starts over from revolution 0, lead-in first
	now = spin(l, now, 610)
	settle(now, 5000)

	snap := l.Engine.Snapshot()
	if snap.Required != 20 || snap.Actual != 20 || snap.Armed {
		t.Errorf("required %d actual %d armed %v, want 20/20 idle", snap.Required, snap.Actual, snap.Armed)
	}
	if !l.Engine.Converged() {
		t.Error("carriage not converged")
	}
}

func TestButtonsReachEngine(t *testing.T) {
	l, _, _, gpio := setup(t)
	l.Start()
	defer l.Stop()

	// Button 4 latches the limit
	gpio.Drive(pins[3], false)
	for _, now := range []uint32{20000, 40000} {
		core.SetTime(now)
		core.ProcessTimers()
	}
	gpio.Drive(pins[3], true)
	for _, now := range []uint32{60000, 80000} {
		core.SetTime(now)
		core.ProcessTimers()
	}

	snap := l.Engine.Snapshot()
	if !snap.Limited || snap.Limit != 1 {
		t.Errorf("limit: got limited=%v limit=%d, want true/1", snap.Limited, snap.Limit)
	}
}

func TestHeadless(t *testing.T) {
	core.ClearTimers()
	core.TimerInit()
	defer core.ClearTimers()

	l, err := New(Options{Backend: &countingBackend{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Display != nil || l.Controller != nil {
		t.Error("headless lathe built a display or controller")
	}
	l.Start()
	l.Service()
	l.Stop()
}

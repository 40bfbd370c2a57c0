package engine

import (
	"sync"
	"sync/atomic"
	"testing"
)

// fakePulseTimer queues completions; run delivers them one by one the way
// the timer interrupt would.
type fakePulseTimer struct {
	pulses  []bool
	pending int
	maxOut  int
}

func (f *fakePulseTimer) Pulse(forward bool) { f.pulses = append(f.pulses, forward) }

func (f *fakePulseTimer) Arm() {
	f.pending++
	if f.pending > f.maxOut {
		f.maxOut = f.pending
	}
}

func (f *fakePulseTimer) run(e *Engine) int {
	n := 0
	for f.pending > 0 {
		f.pending--
		e.OnPulseComplete()
		n++
	}
	return n
}

func newTestEngine(num, den uint8) (*Engine, *fakePulseTimer) {
	cfg := DefaultConfig()
	cfg.Numerator = num
	cfg.Denominator = den
	p := &fakePulseTimer{}
	return New(cfg, p), p
}

func spin(e *Engine, physical bool, n int) {
	for i := 0; i < n; i++ {
		e.OnEncoderEdge(physical)
	}
}

func TestEngineFollowsSpindle(t *testing.T) {
	tests := []struct {
		name     string
		num, den uint8
		turns    int
		want     uint32
	}{
		{"one to one", 1, 1, 3, 2 * DefaultStepsPerTurn},
		{"half", 1, 2, 3, DefaultStepsPerTurn},
		{"five thirds", 5, 3, 2, 1000},
		{"lead-in only", 7, 1, 1, 0},
	}

	for _, tt := range tests {
		e, p := newTestEngine(tt.num, tt.den)
		spin(e, true, tt.turns*DefaultStepsPerTurn)
		p.run(e)

		snap := e.Snapshot()
		if snap.Actual != tt.want || snap.Required != tt.want || snap.Lag != 0 {
			t.Errorf("%s: required %d actual %d, want %d", tt.name, snap.Required, snap.Actual, tt.want)
		}
		if len(p.pulses) != int(tt.want) {
			t.Errorf("%s: %d pulses, want %d", tt.name, len(p.pulses), tt.want)
		}
		if p.maxOut > 1 {
			t.Errorf("%s: %d completions outstanding at once", tt.name, p.maxOut)
		}
	}
}

func TestEngineInterleavedCompletions(t *testing.T) {
	e, p := newTestEngine(3, 1)
	spin(e, true, DefaultStepsPerTurn)

	// One completion per edge: the carriage falls behind at 3:1 and
	// catches up afterwards.
	for i := 0; i < 100; i++ {
		e.OnEncoderEdge(true)
		if p.pending > 0 {
			p.pending--
			e.OnPulseComplete()
		}
	}
	if lag := e.Snapshot().Lag; lag <= 0 {
		t.Fatalf("Expected the carriage to lag, got %d", lag)
	}

	p.run(e)
	snap := e.Snapshot()
	if snap.Actual != 300 || !e.Converged() {
		t.Errorf("actual %d, want 300", snap.Actual)
	}
	if p.maxOut > 1 {
		t.Errorf("%d completions outstanding at once", p.maxOut)
	}
}

func TestEngineBackwardReturnsCarriage(t *testing.T) {
	e, p := newTestEngine(2, 3)
	spin(e, true, 4*DefaultStepsPerTurn+123)
	p.run(e)
	spin(e, false, 4*DefaultStepsPerTurn+123)
	p.run(e)

	snap := e.Snapshot()
	if snap.Actual != 0 || snap.Remainder != 0 {
		t.Errorf("actual %d remainder %d after returning to start", snap.Actual, snap.Remainder)
	}
	if snap.Angle != 0 || snap.Revolutions != 0 {
		t.Errorf("spindle at angle %d rev %d", snap.Angle, snap.Revolutions)
	}
}

func TestEngineModeIsDeferred(t *testing.T) {
	e, p := newTestEngine(1, 1)
	spin(e, true, DefaultStepsPerTurn+10)

	e.SetMode(ModeRight)
	snap := e.Snapshot()
	if snap.Mode != ModeLeft || snap.PendingMode != ModeRight {
		t.Fatalf("mode %v pending %v", snap.Mode, snap.PendingMode)
	}

	// Under Right the same physical level runs backward once committed
	spin(e, true, DefaultStepsPerTurn-10)
	spin(e, true, 5)
	p.run(e)

	snap = e.Snapshot()
	if snap.Mode != ModeRight {
		t.Fatal("Mode not committed at the turn boundary")
	}
	if snap.Revolutions != 1 || snap.Angle != DefaultStepsPerTurn-5 {
		t.Errorf("angle %d rev %d", snap.Angle, snap.Revolutions)
	}
}

func TestEngineLimitLatch(t *testing.T) {
	e, p := newTestEngine(1, 1)
	spin(e, true, 5*DefaultStepsPerTurn+20)

	if !e.RequestLimitLatch() {
		t.Fatal("First latch failed")
	}
	if e.RequestLimitLatch() {
		t.Error("Second latch succeeded")
	}

	spin(e, true, 10*DefaultStepsPerTurn)
	p.run(e)

	snap := e.Snapshot()
	if !snap.Limited || snap.Limit != 6 || snap.Revolutions != 6 {
		t.Errorf("limit %d (%v) rev %d", snap.Limit, snap.Limited, snap.Revolutions)
	}
	if snap.Actual != 5*DefaultStepsPerTurn {
		t.Errorf("actual %d, want %d", snap.Actual, 5*DefaultStepsPerTurn)
	}
}

func TestEngineReset(t *testing.T) {
	e, p := newTestEngine(1, 3)
	spin(e, true, 2*DefaultStepsPerTurn+2)
	e.RequestLimitLatch()

	// Reset with demand outstanding: the carriage holds where it is
	p.pending--
	e.OnPulseComplete()
	e.Reset()
	p.run(e)

	snap := e.Snapshot()
	if snap.Required != snap.Actual || snap.Actual != 1 {
		t.Errorf("required %d actual %d", snap.Required, snap.Actual)
	}
	if snap.Remainder != 0 || snap.Limited || snap.Angle != 0 || snap.Revolutions != 0 {
		t.Errorf("state not re-zeroed: %+v", snap)
	}
	if snap.Steps != 2*DefaultStepsPerTurn+2 {
		t.Errorf("step counter %d was reset", snap.Steps)
	}
}

func TestEngineResume(t *testing.T) {
	e, p := newTestEngine(1, 1)
	spin(e, true, DefaultStepsPerTurn+5)

	// The pulse timer was stopped with a completion outstanding
	p.pending = 0
	spin(e, true, 5)
	if p.pending != 0 {
		t.Fatal("armed while a completion was outstanding")
	}

	e.Resume()
	if p.pending != 1 {
		t.Fatalf("Resume armed %d times, want 1", p.pending)
	}
	p.run(e)

	snap := e.Snapshot()
	if snap.Required != 10 || snap.Actual != 10 || snap.Armed {
		t.Errorf("required %d actual %d armed %v, want 10/10 idle", snap.Required, snap.Actual, snap.Armed)
	}

	e.Resume()
	if p.pending != 0 {
		t.Error("Resume armed a converged carriage")
	}
}

func TestEngineConfigureRatio(t *testing.T) {
	e, p := newTestEngine(1, 3)
	spin(e, true, DefaultStepsPerTurn+2)
	if e.Snapshot().Remainder != 2 {
		t.Fatalf("remainder %d, want 2", e.Snapshot().Remainder)
	}

	e.ConfigureRatio(4, 0)
	snap := e.Snapshot()
	if snap.Numerator != 4 || snap.Denominator != 1 || snap.Remainder != 0 {
		t.Errorf("ratio %d/%d remainder %d", snap.Numerator, snap.Denominator, snap.Remainder)
	}

	spin(e, true, 2)
	p.run(e)
	if got := e.Snapshot().Actual; got != 8 {
		t.Errorf("actual %d, want 8", got)
	}
}

func TestEngineRPM(t *testing.T) {
	e, _ := newTestEngine(1, 1)
	for tick := 0; tick < DefaultRPMWindowTicks; tick++ {
		if tick%5 == 0 {
			spin(e, true, 6) // 600 edges over the window
		}
		e.OnTick()
	}
	if rpm := e.Snapshot().RPM; rpm != 60 {
		t.Errorf("RPM = %d, want 60", rpm)
	}
}

// armCounter is a pulse timer safe to call from several goroutines
type armCounter struct {
	arms atomic.Int32
}

func (a *armCounter) Pulse(bool) {}
func (a *armCounter) Arm()       { a.arms.Add(1) }

func TestEngineConcurrentEntryPoints(t *testing.T) {
	p := &armCounter{}
	e := New(DefaultConfig(), p)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		spin(e, true, 2*DefaultStepsPerTurn)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			e.ConfigureRatio(1, 1)
			e.SetMode(ModeLeft)
			e.OnTick()
		}
	}()
	wg.Wait()

	snap := e.Snapshot()
	if snap.Required != DefaultStepsPerTurn {
		t.Errorf("required: got %d, want %d", snap.Required, DefaultStepsPerTurn)
	}
	if got := p.arms.Load(); got != 1 {
		t.Errorf("arms: got %d, want 1", got)
	}
}

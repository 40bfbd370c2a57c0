package core

import "testing"

type recordingBackend struct {
	steps   int
	dirs    []bool
	stopped bool
}

func (b *recordingBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	return nil
}
func (b *recordingBackend) Step()                 { b.steps++ }
func (b *recordingBackend) SetDirection(dir bool) { b.dirs = append(b.dirs, dir) }
func (b *recordingBackend) Stop()                 { b.stopped = true }
func (b *recordingBackend) GetName() string       { return "recording" }

func TestStepPulserArmFiresOnce(t *testing.T) {
	resetClock(t)

	backend := &recordingBackend{}
	p := NewStepPulser(0, backend, 100)
	completions := 0
	p.SetCompletionHandler(func() { completions++ })

	p.Arm()
	p.Arm()
	if !p.Armed() {
		t.Fatal("Expected pulser to be armed")
	}

	ProcessTimers()
	if completions != 1 {
		t.Fatalf("Expected one completion, got %d", completions)
	}
	if p.Armed() {
		t.Error("Pulser still armed after completion")
	}
}

func TestStepPulserRespectsInterval(t *testing.T) {
	resetClock(t)

	backend := &recordingBackend{}
	p := NewStepPulser(0, backend, 100)
	completions := 0
	p.SetCompletionHandler(func() { completions++ })

	SetTime(1000)
	p.Pulse(true)
	p.Arm()

	SetTime(1099)
	ProcessTimers()
	if completions != 0 {
		t.Fatalf("Completion fired before the pulse interval elapsed")
	}

	SetTime(1100)
	ProcessTimers()
	if completions != 1 {
		t.Errorf("Expected completion at interval end, got %d", completions)
	}
}

func TestStepPulserDirectionChanges(t *testing.T) {
	resetClock(t)

	backend := &recordingBackend{}
	p := NewStepPulser(0, backend, 10)

	p.Pulse(true)
	p.Pulse(true)
	p.Pulse(false)
	p.Pulse(true)

	want := []bool{false, true, false}
	if len(backend.dirs) != len(want) {
		t.Fatalf("Expected %d direction writes, got %v", len(want), backend.dirs)
	}
	for i := range want {
		if backend.dirs[i] != want[i] {
			t.Errorf("direction write %d = %v, want %v", i, backend.dirs[i], want[i])
		}
	}
	if backend.steps != 4 || p.Pulses() != 4 {
		t.Errorf("Expected 4 steps, backend=%d pulser=%d", backend.steps, p.Pulses())
	}
}

func TestStepPulserStop(t *testing.T) {
	resetClock(t)

	backend := &recordingBackend{}
	p := NewStepPulser(0, backend, 10)
	fired := false
	p.SetCompletionHandler(func() { fired = true })

	p.Arm()
	p.Stop()
	ProcessTimers()

	if fired {
		t.Error("Completion fired after Stop")
	}
	if !backend.stopped {
		t.Error("Backend not stopped")
	}
}

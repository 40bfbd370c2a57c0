package core

// StepPulser drives a StepperBackend one pulse at a time and reports each
// pulse period back through a scheduler timer. It is the one-shot pulse
// capability of the synchronization engine: Pulse emits the step, Arm
// requests a completion callback once the backend may step again.
type StepPulser struct {
	OID      uint8
	Backend  StepperBackend
	Interval uint32 // minimum ticks between the starts of two pulses

	completeTimer Timer
	onComplete    func()
	pending       bool
	lastPulse     uint32
	pulses        uint32
	reverse       bool
	dirKnown      bool
}

// NewStepPulser wraps an initialised backend
func NewStepPulser(oid uint8, backend StepperBackend, interval uint32) *StepPulser {
	p := &StepPulser{
		OID:      oid,
		Backend:  backend,
		Interval: interval,
	}
	p.completeTimer.Handler = p.completionHandler
	return p
}

// SetCompletionHandler installs the callback run when an armed period ends
func (p *StepPulser) SetCompletionHandler(fn func()) {
	p.onComplete = fn
}

// Pulse sets the direction line and emits one step.
// Called from the engine's critical section; must stay short.
func (p *StepPulser) Pulse(forward bool) {
	reverse := !forward
	if !p.dirKnown || reverse != p.reverse {
		p.Backend.SetDirection(reverse)
		p.reverse = reverse
		p.dirKnown = true
	}
	p.Backend.Step()
	p.lastPulse = GetTime()
	p.pulses++
	RecordTiming(EvtPulse, p.OID, p.lastPulse, p.pulses, 0)
}

// Arm schedules the completion callback one interval after the last pulse,
// or immediately if the backend has been idle for longer than that.
// Arming while already armed is a no-op.
func (p *StepPulser) Arm() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if p.pending {
		return
	}
	p.pending = true

	now := GetTime()
	wake := now
	if p.pulses != 0 && now-p.lastPulse < p.Interval {
		wake = p.lastPulse + p.Interval
	}
	p.completeTimer.WakeTime = wake
	insertTimer(&p.completeTimer)
	RecordTiming(EvtArm, p.OID, now, wake, 0)
}

// completionHandler is the scheduler callback for an armed period
func (p *StepPulser) completionHandler(t *Timer) uint8 {
	state := disableInterrupts()
	p.pending = false
	restoreInterrupts(state)

	if p.onComplete != nil {
		p.onComplete()
	}
	return SF_DONE
}

// Stop cancels a pending completion and halts the backend
func (p *StepPulser) Stop() {
	CancelTimer(&p.completeTimer)
	state := disableInterrupts()
	p.pending = false
	restoreInterrupts(state)
	p.Backend.Stop()
}

// Pulses returns the number of pulses emitted so far
func (p *StepPulser) Pulses() uint32 {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return p.pulses
}

// Armed reports whether a completion callback is outstanding
func (p *StepPulser) Armed() bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return p.pending
}

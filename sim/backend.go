package sim

import "leadscrew/core"

// recorder is a StepperBackend that counts pulses and tracks the position
// they produce
type recorder struct {
	reverse  bool
	position int64
	steps    uint32
	reversal uint32
	stopped  bool
}

var _ core.StepperBackend = (*recorder)(nil)

func (r *recorder) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error {
	return nil
}

func (r *recorder) Step() {
	r.steps++
	if r.reverse {
		r.position--
	} else {
		r.position++
	}
}

func (r *recorder) SetDirection(dir bool) {
	if dir != r.reverse && r.steps > 0 {
		r.reversal++
	}
	r.reverse = dir
}

func (r *recorder) Stop() {
	r.stopped = true
}

func (r *recorder) GetName() string {
	return "sim"
}

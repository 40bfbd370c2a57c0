package engine

import "math"

// RPMEstimator turns the spindle step counter into revolutions per minute,
// sampled once every windowTicks periodic ticks.
type RPMEstimator struct {
	stepsPerTurn uint16
	windowTicks  uint16
	windowUS     uint64

	ticks uint16
	last  uint32
	rpm   int32
}

// NewRPMEstimator samples every windowTicks ticks of tickUS microseconds
func NewRPMEstimator(stepsPerTurn uint16, tickUS uint32, windowTicks uint16) RPMEstimator {
	return RPMEstimator{
		stepsPerTurn: stepsPerTurn,
		windowTicks:  windowTicks,
		windowUS:     uint64(tickUS) * uint64(windowTicks),
	}
}

// Tick advances one period and returns true when a new estimate was made.
// The counter counts down while the spindle runs backward, so the wrapping
// difference carries the direction.
func (r *RPMEstimator) Tick(counter uint32) bool {
	r.ticks++
	if r.ticks < r.windowTicks {
		return false
	}
	r.ticks = 0

	diff := int32(counter - r.last)
	r.last = counter

	// |diff| * 60e6 stays below 2^57 and the divisor below 2^64
	mag := uint64(diff)
	if diff < 0 {
		mag = uint64(-int64(diff))
	}
	div := uint64(r.stepsPerTurn) * r.windowUS
	if div == 0 {
		r.rpm = 0
		return true
	}
	q := mag * 60_000_000 / div
	if q > math.MaxInt32 {
		q = math.MaxInt32
	}
	r.rpm = int32(q)
	if diff < 0 {
		r.rpm = -r.rpm
	}
	return true
}

// RPM returns the last estimate
func (r *RPMEstimator) RPM() int32 {
	return r.rpm
}

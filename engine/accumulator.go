package engine

// Accumulator folds unit spindle events into whole carriage steps at a
// fixed ratio numerator/denominator using integer arithmetic only.
//
// The folded total is kept as net + remainder/denominator with the
// remainder carrying the sign of net (either sign while net is zero), so
// net is always the total truncated toward zero and the state depends only
// on the net event count.
type Accumulator struct {
	numerator   int32
	denominator int32
	remainder   int32
	net         int64
}

// NewAccumulator returns an accumulator for num/den
func NewAccumulator(num, den uint8) Accumulator {
	var a Accumulator
	a.Configure(num, den)
	return a
}

// Configure sets the ratio and re-zeroes the accumulated fraction.
// A zero denominator is treated as 1.
func (a *Accumulator) Configure(num, den uint8) {
	if den == 0 {
		den = 1
	}
	a.numerator = int32(num)
	a.denominator = int32(den)
	a.Reset()
}

// Increment folds one forward event and returns the whole-step delta
func (a *Accumulator) Increment() int32 {
	return a.fold(a.remainder + a.numerator)
}

// Decrement folds one backward event and returns the whole-step delta
func (a *Accumulator) Decrement() int32 {
	return a.fold(a.remainder - a.numerator)
}

func (a *Accumulator) fold(r int32) int32 {
	q := r / a.denominator
	rem := r - q*a.denominator
	net := a.net + int64(q)

	switch {
	case net > 0 && rem < 0:
		net--
		rem += a.denominator
	case net < 0 && rem > 0:
		net++
		rem -= a.denominator
	}

	delta := int32(net - a.net)
	a.net = net
	a.remainder = rem
	return delta
}

// Remainder returns the pending fraction in units of 1/denominator
func (a *Accumulator) Remainder() int32 {
	return a.remainder
}

// Net returns the whole steps emitted since the last Configure or Reset
func (a *Accumulator) Net() int64 {
	return a.net
}

// Ratio returns the configured numerator and denominator
func (a *Accumulator) Ratio() (uint8, uint8) {
	return uint8(a.numerator), uint8(a.denominator)
}

// Reset discards the accumulated fraction and step count
func (a *Accumulator) Reset() {
	a.remainder = 0
	a.net = 0
}

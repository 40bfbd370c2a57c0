package engine

// Pulser emits one step pulse with the direction line already set
type Pulser interface {
	Pulse(forward bool)
}

// Carriage walks the actual stepper position toward the required one,
// one pulse per completion of the pulse timer.
type Carriage struct {
	required uint32
	actual   uint32
	armed    bool
}

// Retarget moves the required position by delta. It returns true when the
// pulse timer has to be armed to start moving.
func (c *Carriage) Retarget(delta int32) bool {
	if delta == 0 {
		return false
	}
	c.required += uint32(delta)
	if c.armed || c.Converged() {
		return false
	}
	c.armed = true
	return true
}

// Retire handles a pulse timer completion: one step toward required.
// It returns true when another completion is needed.
func (c *Carriage) Retire(p Pulser) bool {
	c.armed = false
	if c.Converged() {
		return false
	}

	forward := c.Lag() > 0
	p.Pulse(forward)
	if forward {
		c.actual++
	} else {
		c.actual--
	}

	if c.Converged() {
		return false
	}
	c.armed = true
	return true
}

// Converged reports whether the carriage is where it should be
func (c *Carriage) Converged() bool {
	return c.required == c.actual
}

// Lag is the signed distance still to travel
func (c *Carriage) Lag() int32 {
	return int32(c.required - c.actual)
}

func (c *Carriage) Required() uint32 { return c.required }
func (c *Carriage) Actual() uint32   { return c.actual }
func (c *Carriage) Armed() bool      { return c.armed }

// Hold drops any outstanding demand: required becomes actual. The next
// Retarget kicks the pulse timer again; a completion still in flight finds
// the carriage converged and stops.
func (c *Carriage) Hold() {
	c.required = c.actual
	c.armed = false
}

// Rearm forgets a completion that will never arrive because the pulse
// timer was stopped. It returns true when the timer has to be armed.
func (c *Carriage) Rearm() bool {
	c.armed = !c.Converged()
	return c.armed
}

package core

// Shared holds state that is written from interrupt handlers and read from
// the foreground loop. The value is reachable only through a Guard, so every
// access happens with interrupts disabled.
type Shared[T any] struct {
	value T
}

// Guard is a held critical section over a Shared value.
type Guard[T any] struct {
	cell  *Shared[T]
	state State
}

// NewShared wraps an initial value
func NewShared[T any](initial T) *Shared[T] {
	return &Shared[T]{value: initial}
}

// Lock disables interrupts and returns the guard for the value.
// Critical sections must not nest: release the guard before calling
// anything that schedules timers.
func (s *Shared[T]) Lock() Guard[T] {
	return Guard[T]{cell: s, state: disableInterrupts()}
}

// Value returns the guarded value. The pointer is only valid until Unlock.
func (g Guard[T]) Value() *T {
	return &g.cell.value
}

// Unlock restores the interrupt state saved by Lock
func (g Guard[T]) Unlock() {
	restoreInterrupts(g.state)
}

// Load copies the value out inside a critical section
func (s *Shared[T]) Load() T {
	g := s.Lock()
	v := *g.Value()
	g.Unlock()
	return v
}

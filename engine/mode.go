package engine

import "strings"

// Mode selects which physical spindle direction counts as forward
type Mode uint8

const (
	ModeLeft Mode = iota
	ModeRight
)

func (m Mode) String() string {
	if m == ModeRight {
		return "Right"
	}
	return "Left"
}

// Toggle returns the other mode
func (m Mode) Toggle() Mode {
	if m == ModeRight {
		return ModeLeft
	}
	return ModeRight
}

// ParseMode accepts "left" or "right" in any case
func ParseMode(s string) (Mode, bool) {
	switch {
	case strings.EqualFold(s, "left"):
		return ModeLeft, true
	case strings.EqualFold(s, "right"):
		return ModeRight, true
	}
	return ModeLeft, false
}

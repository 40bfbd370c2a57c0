package menu

import (
	"testing"

	"leadscrew/engine"
)

func TestSetupWalk(t *testing.T) {
	s := NewSetup(engine.ModeLeft, 1, 1)

	steps := []struct {
		press  Buttons
		state  State
		column uint8
		num    uint8
		den    uint8
		mode   engine.Mode
	}{
		{ButtonUp, StateMode, 0, 1, 1, engine.ModeRight},
		{ButtonNext, StateNum100, 6, 1, 1, engine.ModeRight},
		{ButtonUp, StateNum100, 6, 101, 1, engine.ModeRight},
		{ButtonNext, StateNum10, 7, 101, 1, engine.ModeRight},
		{ButtonDown, StateNum10, 7, 91, 1, engine.ModeRight},
		{ButtonNext, StateNum1, 8, 91, 1, engine.ModeRight},
		{ButtonUp, StateNum1, 8, 92, 1, engine.ModeRight},
		{ButtonNext, StateDen100, 10, 92, 1, engine.ModeRight},
		{ButtonUp, StateDen100, 10, 92, 101, engine.ModeRight},
		{ButtonNext, StateDen10, 11, 92, 101, engine.ModeRight},
		{ButtonUp, StateDen10, 11, 92, 111, engine.ModeRight},
		{ButtonNext, StateDen1, 12, 92, 111, engine.ModeRight},
		{ButtonDown, StateDen1, 12, 92, 110, engine.ModeRight},
		{ButtonNext, StateDone, 0, 92, 110, engine.ModeRight},
	}

	for i, st := range steps {
		s.Press(st.press)
		if s.State() != st.state || s.Column() != st.column {
			t.Fatalf("step %d: state %d column %d, want %d column %d", i, s.State(), s.Column(), st.state, st.column)
		}
		if s.Numerator != st.num || s.Denominator != st.den || s.Mode != st.mode {
			t.Fatalf("step %d: %v %d/%d, want %v %d/%d", i, s.Mode, s.Numerator, s.Denominator, st.mode, st.num, st.den)
		}
	}

	if !s.Done() || s.Press(ButtonNext) {
		t.Error("Done menu still accepts presses")
	}
}

func TestSetupDownOnModeDoesNothing(t *testing.T) {
	s := NewSetup(engine.ModeLeft, 1, 1)
	if s.Press(ButtonDown) || s.Mode != engine.ModeLeft {
		t.Error("Down must not change the mode")
	}
}

func TestSetupNextWinsOverUp(t *testing.T) {
	s := NewSetup(engine.ModeLeft, 1, 1)
	s.Press(ButtonNext | ButtonUp)
	if s.State() != StateNum100 || s.Mode != engine.ModeLeft {
		t.Errorf("state %d mode %v", s.State(), s.Mode)
	}
}

func TestSetupSaturates(t *testing.T) {
	s := NewSetup(engine.ModeLeft, 250, 3)
	s.Press(ButtonNext) // Num100
	if !s.Press(ButtonUp) || s.Numerator != 255 {
		t.Errorf("Numerator %d, want 255", s.Numerator)
	}
	if s.Press(ButtonUp) {
		t.Error("Press at 255 reported a change")
	}

	for i := 0; i < 4; i++ {
		s.Press(ButtonNext)
	} // Den10
	s.Press(ButtonDown)
	if s.Denominator != 0 {
		t.Errorf("Denominator %d, want 0 while editing", s.Denominator)
	}

	s.Press(ButtonNext) // Den1
	s.Press(ButtonNext) // Done
	if s.Denominator != 1 {
		t.Errorf("Denominator %d, want 1 after leaving the menu", s.Denominator)
	}
}

func TestSaturatingAdd(t *testing.T) {
	tests := []struct {
		v     uint8
		delta int16
		want  uint8
	}{
		{0, -1, 0},
		{5, -100, 0},
		{200, 100, 255},
		{155, 100, 255},
		{154, 100, 254},
		{10, -10, 0},
	}
	for _, tt := range tests {
		if got := saturatingAdd(tt.v, tt.delta); got != tt.want {
			t.Errorf("saturatingAdd(%d, %d) = %d, want %d", tt.v, tt.delta, got, tt.want)
		}
	}
}

package link

import (
	"testing"

	"leadscrew/core"
	"leadscrew/engine"
	"leadscrew/protocol"
)

type message struct {
	name string
	args []byte
}

// capture installs a transport writing into a scratch buffer and returns
// a function that decodes every frame sent since the last call
func capture(t *testing.T) func() []message {
	t.Helper()
	core.InitCoreCommands()
	InitCommands()
	core.ResetFirmwareState()

	out := protocol.NewScratchOutput()
	core.SetGlobalTransport(protocol.NewTransport(out, nil))
	t.Cleanup(func() { core.SetGlobalTransport(nil) })

	return func() []message {
		data := append([]byte(nil), out.Result()...)
		out.Reset()

		var msgs []message
		for len(data) > 0 {
			n := int(data[0])
			payload := data[protocol.MessageHeaderSize : n-protocol.MessageTrailerSize]
			id, err := protocol.DecodeVLQUint(&payload)
			if err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			cmd, ok := core.GetGlobalRegistry().GetCommand(uint16(id))
			if !ok {
				t.Fatalf("unknown message id %d", id)
			}
			msgs = append(msgs, message{name: cmd.Name, args: payload})
			data = data[n:]
		}
		return msgs
	}
}

func args(values ...uint32) []byte {
	out := protocol.NewScratchOutput()
	for _, v := range values {
		protocol.EncodeVLQUint(out, v)
	}
	return append([]byte(nil), out.Result()...)
}

func ackResult(t *testing.T, msgs []message) uint32 {
	t.Helper()
	if len(msgs) != 1 || msgs[0].name != "leadscrew_ack" {
		t.Fatalf("expected one leadscrew_ack, got %v", msgs)
	}
	result, err := protocol.DecodeVLQUint(&msgs[0].args)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

type fakeEngine struct {
	snap    engine.Snapshot
	ratios  [][2]uint8
	modes   []engine.Mode
	latched bool
	resets  int
}

func (f *fakeEngine) ConfigureRatio(num, den uint8) { f.ratios = append(f.ratios, [2]uint8{num, den}) }
func (f *fakeEngine) SetMode(m engine.Mode)         { f.modes = append(f.modes, m) }
func (f *fakeEngine) Reset()                        { f.resets++ }
func (f *fakeEngine) Snapshot() engine.Snapshot     { return f.snap }

func (f *fakeEngine) RequestLimitLatch() bool {
	if f.latched {
		return false
	}
	f.latched = true
	return true
}

func TestSetRatio(t *testing.T) {
	sent := capture(t)
	eng := &fakeEngine{}
	New(eng, 0)

	tests := []struct {
		name   string
		lag    int32
		num    uint32
		den    uint32
		result uint32
		apply  bool
	}{
		{"converged", 0, 3, 4, AckOK, true},
		{"moving", 2, 5, 6, AckBusy, false},
		{"numerator too large", 0, 300, 1, AckInvalid, false},
		{"denominator too large", 0, 1, 256, AckInvalid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng.ratios = nil
			eng.snap.Lag = tt.lag
			data := args(tt.num, tt.den)
			if err := handleSetRatio(&data); err != nil {
				t.Fatal(err)
			}
			if got := ackResult(t, sent()); got != tt.result {
				t.Errorf("result %d, want %d", got, tt.result)
			}
			if applied := len(eng.ratios) == 1; applied != tt.apply {
				t.Errorf("applied %v, want %v", applied, tt.apply)
			}
		})
	}
}

func TestSetRatioTruncated(t *testing.T) {
	capture(t)
	New(&fakeEngine{}, 0)

	data := args(3)
	if err := handleSetRatio(&data); err == nil {
		t.Error("Expected an error for a missing denominator")
	}
}

func TestSetMode(t *testing.T) {
	sent := capture(t)
	eng := &fakeEngine{}
	New(eng, 0)

	data := args(1)
	if err := handleSetMode(&data); err != nil {
		t.Fatal(err)
	}
	if ackResult(t, sent()) != AckOK || len(eng.modes) != 1 || eng.modes[0] != engine.ModeRight {
		t.Errorf("modes %v", eng.modes)
	}

	data = args(7)
	handleSetMode(&data)
	if ackResult(t, sent()) != AckInvalid || len(eng.modes) != 1 {
		t.Error("Invalid mode accepted")
	}
}

func TestCommandsRefusedWhileShutdown(t *testing.T) {
	sent := capture(t)
	eng := &fakeEngine{}
	New(eng, 0)

	core.TryShutdown("test")
	sent()
	defer core.ResetFirmwareState()

	data := args(2, 3)
	handleSetRatio(&data)
	if ackResult(t, sent()) != AckShutdown || len(eng.ratios) != 0 {
		t.Error("set_ratio ran during shutdown")
	}
}

func TestLatchAndReset(t *testing.T) {
	sent := capture(t)
	eng := &fakeEngine{}
	New(eng, 0)

	var data []byte
	handleLatchLimit(&data)
	if ackResult(t, sent()) != AckOK {
		t.Error("First latch rejected")
	}
	handleLatchLimit(&data)
	if ackResult(t, sent()) != AckRejected {
		t.Error("Second latch accepted")
	}

	handleResetSync(&data)
	if ackResult(t, sent()) != AckOK || eng.resets != 1 {
		t.Errorf("resets %d", eng.resets)
	}
}

func TestStatusEncoding(t *testing.T) {
	sent := capture(t)
	snap := engine.Snapshot{
		Angle:       599,
		Revolutions: 12,
		Limit:       13,
		Limited:     true,
		Mode:        engine.ModeRight,
		PendingMode: engine.ModeLeft,
		Required:    7200,
		Actual:      7190,
		Remainder:   -3,
		RPM:         -120,
		Steps:       90000,
		Numerator:   2,
		Denominator: 3,
	}
	New(&fakeEngine{snap: snap}, 0)

	var data []byte
	if err := handleGetStatus(&data); err != nil {
		t.Fatal(err)
	}
	msgs := sent()
	if len(msgs) != 1 || msgs[0].name != "leadscrew_status" {
		t.Fatalf("got %v", msgs)
	}

	payload := msgs[0].args
	want := []int64{599, 12, 13, 1, 1, 0, 7200, 7190, -3, -120, 90000, 2, 3}
	for i, w := range want {
		var got int64
		if w < 0 {
			v, err := protocol.DecodeVLQInt(&payload)
			if err != nil {
				t.Fatal(err)
			}
			got = int64(v)
		} else {
			v, err := protocol.DecodeVLQUint(&payload)
			if err != nil {
				t.Fatal(err)
			}
			got = int64(v)
		}
		if got != w {
			t.Errorf("field %d = %d, want %d", i, got, w)
		}
	}
	if len(payload) != 0 {
		t.Errorf("%d bytes left over", len(payload))
	}
}

func TestPeriodicStatus(t *testing.T) {
	sent := capture(t)
	core.ClearTimers()
	core.TimerInit()
	defer core.ClearTimers()

	l := New(&fakeEngine{}, 250000)
	l.Start()
	for ms := uint32(100); ms <= 1000; ms += 100 {
		core.SetTime(ms * 1000)
		core.ProcessTimers()
	}
	l.Stop()

	if l.Reports() != 4 {
		t.Errorf("reports %d, want 4", l.Reports())
	}
	if msgs := sent(); len(msgs) != 4 {
		t.Errorf("sent %d frames", len(msgs))
	}
}

type idlePulser struct{}

func (idlePulser) Pulse(forward bool) {}
func (idlePulser) Arm()               {}

func TestLinkDrivesEngine(t *testing.T) {
	sent := capture(t)
	eng := engine.New(engine.DefaultConfig(), idlePulser{})
	New(eng, 0)

	data := args(5, 8)
	handleSetRatio(&data)
	if ackResult(t, sent()) != AckOK {
		t.Fatal("set_ratio refused")
	}
	if s := eng.Snapshot(); s.Numerator != 5 || s.Denominator != 8 {
		t.Errorf("ratio %d/%d", s.Numerator, s.Denominator)
	}

	data = args(0, 0)
	handleSetRatio(&data)
	ackResult(t, sent())
	if s := eng.Snapshot(); s.Denominator != 1 {
		t.Errorf("zero denominator stored as %d", s.Denominator)
	}
}

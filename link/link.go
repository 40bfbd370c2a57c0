// Package link exposes the engine over the command protocol: typed
// commands to change the ratio, mode and limit, and a periodic status
// report.
package link

import (
	"errors"

	"leadscrew/core"
	"leadscrew/engine"
	"leadscrew/protocol"
)

// Ack results carried by leadscrew_ack
const (
	AckOK       = 0
	AckBusy     = 1 // carriage still moving
	AckInvalid  = 2 // argument out of range
	AckShutdown = 3 // firmware is shut down
	AckRejected = 4 // request had no effect
)

const (
	StatusFormat = "angle=%hu revolutions=%u limit=%u limited=%c mode=%c pending_mode=%c" +
		" required=%u actual=%u remainder=%i rpm=%i steps=%u num=%c den=%c"
	AckFormat = "result=%c"
)

var ErrNoEngine = errors.New("no engine attached")

// Engine is the part of the synchronization engine the link drives
type Engine interface {
	ConfigureRatio(num, den uint8)
	SetMode(m engine.Mode)
	RequestLimitLatch() bool
	Reset()
	Snapshot() engine.Snapshot
}

// Link reports status and accepts commands for one engine
type Link struct {
	engine   Engine
	interval uint32
	timer    core.Timer
	reports  uint32
}

// current is the link the registered handlers act on
var current *Link

// New attaches a link to the engine. interval is the status period in
// ticks; zero disables the periodic report.
func New(eng Engine, interval uint32) *Link {
	l := &Link{engine: eng, interval: interval}
	l.timer.Handler = l.statusEvent
	current = l
	return l
}

// InitCommands registers the link commands and responses. Call it after
// core.InitCoreCommands so the identify pair keeps IDs 0 and 1.
func InitCommands() {
	core.RegisterCommand("get_status", "", handleGetStatus)
	core.RegisterCommand("set_ratio", "num=%c den=%c", handleSetRatio)
	core.RegisterCommand("set_mode", "mode=%c", handleSetMode)
	core.RegisterCommand("latch_limit", "", handleLatchLimit)
	core.RegisterCommand("reset_sync", "", handleResetSync)
	core.RegisterCommand("dump_timing", "", handleDumpTiming)

	core.RegisterResponse("leadscrew_status", StatusFormat)
	core.RegisterResponse("leadscrew_ack", AckFormat)
}

// Describe publishes the engine parameters in the data dictionary
func Describe(cfg engine.Config, statusIntervalMS uint32) {
	core.RegisterConstant("STEPS_PER_TURN", uint32(cfg.StepsPerTurn))
	core.RegisterConstant("TICK_US", cfg.TickUS)
	core.RegisterConstant("RPM_WINDOW_TICKS", uint32(cfg.RPMWindowTicks))
	core.RegisterConstant("STATUS_INTERVAL_MS", statusIntervalMS)
	core.RegisterEnumeration("mode", []string{engine.ModeLeft.String(), engine.ModeRight.String()})
}

// Start schedules the periodic status report
func (l *Link) Start() {
	if l.interval == 0 {
		return
	}
	l.timer.WakeTime = core.GetTime() + l.interval
	core.ScheduleTimer(&l.timer)
}

// Stop cancels the periodic status report
func (l *Link) Stop() {
	core.CancelTimer(&l.timer)
}

// Reports returns how many status messages were sent
func (l *Link) Reports() uint32 {
	return l.reports
}

func (l *Link) statusEvent(t *core.Timer) uint8 {
	l.SendStatus()
	t.WakeTime += l.interval
	return core.SF_RESCHEDULE
}

// SendStatus sends one leadscrew_status
func (l *Link) SendStatus() {
	snap := l.engine.Snapshot()
	l.reports++
	core.SendResponse("leadscrew_status", func(output protocol.OutputBuffer) {
		EncodeStatus(output, snap)
	})
}

// EncodeStatus writes the leadscrew_status arguments in dictionary order
func EncodeStatus(output protocol.OutputBuffer, s engine.Snapshot) {
	protocol.EncodeVLQUint(output, uint32(s.Angle))
	protocol.EncodeVLQUint(output, s.Revolutions)
	protocol.EncodeVLQUint(output, s.Limit)
	protocol.EncodeVLQUint(output, boolToU32(s.Limited))
	protocol.EncodeVLQUint(output, uint32(s.Mode))
	protocol.EncodeVLQUint(output, uint32(s.PendingMode))
	protocol.EncodeVLQUint(output, s.Required)
	protocol.EncodeVLQUint(output, s.Actual)
	protocol.EncodeVLQInt(output, s.Remainder)
	protocol.EncodeVLQInt(output, s.RPM)
	protocol.EncodeVLQUint(output, s.Steps)
	protocol.EncodeVLQUint(output, uint32(s.Numerator))
	protocol.EncodeVLQUint(output, uint32(s.Denominator))
}

func sendAck(result uint8) {
	core.SendResponse("leadscrew_ack", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(result))
	})
}

func attached() (*Link, error) {
	if current == nil {
		return nil, ErrNoEngine
	}
	return current, nil
}

func handleGetStatus(data *[]byte) error {
	l, err := attached()
	if err != nil {
		return err
	}
	l.SendStatus()
	return nil
}

// handleSetRatio only changes the ratio while the carriage is at rest, so
// the new ratio never applies to a half finished move
func handleSetRatio(data *[]byte) error {
	num, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	den, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	l, err := attached()
	if err != nil {
		return err
	}

	switch {
	case core.IsShutdown():
		sendAck(AckShutdown)
	case num > 255 || den > 255:
		sendAck(AckInvalid)
	case !l.engine.Snapshot().Converged():
		sendAck(AckBusy)
	default:
		l.engine.ConfigureRatio(uint8(num), uint8(den))
		sendAck(AckOK)
	}
	return nil
}

func handleSetMode(data *[]byte) error {
	mode, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	l, err := attached()
	if err != nil {
		return err
	}

	switch {
	case core.IsShutdown():
		sendAck(AckShutdown)
	case mode > uint32(engine.ModeRight):
		sendAck(AckInvalid)
	default:
		l.engine.SetMode(engine.Mode(mode))
		sendAck(AckOK)
	}
	return nil
}

func handleLatchLimit(data *[]byte) error {
	l, err := attached()
	if err != nil {
		return err
	}
	if l.engine.RequestLimitLatch() {
		sendAck(AckOK)
	} else {
		sendAck(AckRejected)
	}
	return nil
}

func handleResetSync(data *[]byte) error {
	l, err := attached()
	if err != nil {
		return err
	}
	l.engine.Reset()
	sendAck(AckOK)
	return nil
}

func handleDumpTiming(data *[]byte) error {
	core.DumpTimingRing()
	sendAck(AckOK)
	return nil
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

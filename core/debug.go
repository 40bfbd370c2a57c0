package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a timing-critical event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	OID       uint8  // Object ID (engine instance)
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtPulse      = 1 // step pulse issued (v1=pulse count)
	EvtArm        = 2 // pulse completion armed
	EvtRetarget   = 3 // required position moved by the accumulator
	EvtTimerPast  = 4 // timer rescheduled into the past
	EvtLimitLatch = 5 // travel limit latched (v1=limit)
	EvtSyncReset  = 6 // synchronization reset
	EvtRatio      = 7 // ratio configured (v1=num, v2=den)
	EvtModeCommit = 8 // pending mode committed at a turn boundary
	EvtPulseDrop  = 9 // backend could not take a pulse (v1=dropped count)
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
	timingEnabled  bool = true
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetTimingEnabled turns timing capture on or off
func SetTimingEnabled(enabled bool) {
	state := lockTiming()
	timingEnabled = enabled
	unlockTiming(state)
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTiming captures a timing event in the ring buffer.
// Safe to call from interrupt context and from inside a critical section.
func RecordTiming(eventType, oid uint8, clock, value1, value2 uint32) {
	state := lockTiming()
	defer unlockTiming(state)

	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		OID:       oid,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the captured events, oldest first
func TimingEvents() []TimingEvent {
	state := lockTiming()
	ring := timingRing
	head := timingRingHead
	unlockTiming(state)

	events := make([]TimingEvent, 0, TimingRingSize)
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := ring[(head+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue
		}
		events = append(events, evt)
	}
	return events
}

// TimingEventName returns the mnemonic for an event code
func TimingEventName(code uint8) string {
	switch code {
	case EvtPulse:
		return "PULSE"
	case EvtArm:
		return "ARM"
	case EvtRetarget:
		return "RETARGET"
	case EvtTimerPast:
		return "TIMER_PAST!"
	case EvtLimitLatch:
		return "LIMIT"
	case EvtSyncReset:
		return "RESET"
	case EvtRatio:
		return "RATIO"
	case EvtModeCommit:
		return "MODE"
	case EvtPulseDrop:
		return "DROP!"
	default:
		return "UNKNOWN"
	}
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error)
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + TimingEventName(evt.EventType) +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	state := lockTiming()
	defer unlockTiming(state)
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}

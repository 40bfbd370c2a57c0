package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32
)

// timerBefore compares clock values across the 32-bit wrap
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// ScheduleTimer adds a timer to the schedule
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	insertTimer(t)
}

// insertTimer inserts a timer in sorted order by WakeTime.
// Timers with equal WakeTime run in insertion order.
func insertTimer(t *Timer) {
	if timerList == nil || timerBefore(t.WakeTime, timerList.WakeTime) {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && !timerBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// CancelTimer removes a timer from the schedule. Returns false if it was not scheduled.
func CancelTimer(t *Timer) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return true
	}
	for cur := timerList; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return true
		}
	}
	return false
}

// NextWakeTime returns the wake time of the earliest scheduled timer
func NextWakeTime() (uint32, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if timerList == nil {
		return 0, false
	}
	return timerList.WakeTime, true
}

// ClearTimers drops every scheduled timer
func ClearTimers() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for t := timerList; t != nil; {
		next := t.Next
		t.Next = nil
		t = next
	}
	timerList = nil
}

// TimerDispatch processes due timers.
// Handlers run outside the critical section so they may take their own.
func TimerDispatch() {
	for {
		state := disableInterrupts()
		timer := timerList
		if timer == nil || timerBefore(currentTime, timer.WakeTime) {
			restoreInterrupts(state)
			return
		}
		timerList = timer.Next
		timer.Next = nil
		restoreInterrupts(state)

		if timer.Handler(timer) == SF_RESCHEDULE {
			if !timerBefore(currentTime, timer.WakeTime) {
				RecordTiming(EvtTimerPast, 0, currentTime, timer.WakeTime, 0)
			}
			ScheduleTimer(timer)
		}
	}
}

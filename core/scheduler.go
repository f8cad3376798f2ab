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

var timerList *Timer

// ScheduleTimer adds a timer to the schedule (sched_add_timer)
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	RecordTiming(EvtTimerSchedule, 0, GetTime(), t.WakeTime, 0)
	insertTimer(t)
}

// DeleteTimer removes t if it is scheduled (sched_del_timer)
func DeleteTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return
	}
	for cur := timerList; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// ClearTimers drops every scheduled timer (sched_timer_reset)
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

// TimerPending reports whether t is in the schedule
func TimerPending(t *Timer) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for cur := timerList; cur != nil; cur = cur.Next {
		if cur == t {
			return true
		}
	}
	return false
}

// insertTimer inserts a timer in sorted order by WakeTime. Timers with
// equal wake times run in insertion order.
func insertTimer(t *Timer) {
	if timerList == nil || TimerIsBefore(t.WakeTime, timerList.WakeTime) {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && !TimerIsBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}
	t.Next = current.Next
	current.Next = t
}

// TimerDispatch runs every timer whose wake time has passed. Handlers run
// with interrupts disabled. A handler that calls Shutdown stops dispatch;
// the shutdown has already cleared the schedule.
func TimerDispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	now := GetTime()
	for timerList != nil && !TimerIsBefore(now, timerList.WakeTime) {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil

		RecordTiming(EvtTimerFire, 0, now, timer.WakeTime, GetTime())
		result, stopped := runTimer(timer)
		if stopped {
			return
		}
		if result == SF_RESCHEDULE {
			insertTimer(timer)
		}
	}
}

func runTimer(t *Timer) (result uint8, stopped bool) {
	defer func() {
		if rec := recover(); rec != nil {
			if _, ok := rec.(*ShutdownError); !ok {
				panic(rec)
			}
			stopped = true
		}
	}()
	return t.Handler(t), false
}

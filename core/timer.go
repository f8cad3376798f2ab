package core

// DefaultTimerFreq is the tick rate used until a target calls SetTimerFreq
const DefaultTimerFreq = 1000000

var (
	timerFreq uint32 = DefaultTimerFreq

	// 64-bit uptime extension of the 32-bit clock
	uptimeHigh uint32
	uptimeLast uint32
)

// SetTimerFreq sets the tick rate of GetTime and publishes CLOCK_FREQ
func SetTimerFreq(hz uint32) {
	timerFreq = hz
	RegisterConstant("CLOCK_FREQ", hz)
}

func TimerFreq() uint32 {
	return timerFreq
}

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// GetUptime returns 64-bit uptime in timer ticks. The high word advances
// when the 32-bit clock is seen to wrap, so it must be polled at least
// once per wrap period (the main loop does).
func GetUptime() uint64 {
	state := disableInterrupts()
	now := GetTime()
	if now < uptimeLast {
		uptimeHigh++
	}
	uptimeLast = now
	high := uptimeHigh
	restoreInterrupts(state)
	return uint64(high)<<32 | uint64(now)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * uint64(timerFreq) / 1000000)
}

// TimerFromMS converts milliseconds to timer ticks
func TimerFromMS(ms uint32) uint32 {
	return uint32(uint64(ms) * uint64(timerFreq) / 1000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / uint64(timerFreq))
}

// TimerIsBefore compares two clocks across 32-bit wraparound
func TimerIsBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// TimerInit initializes uptime tracking
func TimerInit() {
	uptimeHigh = 0
	uptimeLast = GetTime()
}

// ProcessTimers runs every due timer
func ProcessTimers() {
	GetUptime()
	TimerDispatch()
}

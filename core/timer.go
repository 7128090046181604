package core

// TickRate is the frequency of the step timer clock in Hz.  All segment
// durations, step periods and dwell times are expressed in ticks of this
// clock.
const TickRate = 12000000 // 12MHz

// TicksFromUS converts microseconds to timer ticks.
func TicksFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TickRate / 1000000)
}

// TicksToUS converts timer ticks to microseconds.
func TicksToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TickRate)
}

// TicksFromSeconds converts a duration in seconds to timer ticks.
func TicksFromSeconds(seconds float64) uint32 {
	if seconds <= 0 {
		return 0
	}
	return uint32(seconds*TickRate + 0.5)
}

// TicksToSeconds converts timer ticks to seconds.
func TicksToSeconds(ticks uint32) float64 {
	return float64(ticks) / TickRate
}

// GetTime returns the current system time in timer ticks.
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time.  The host harness advances the
// clock with this; on hardware the tick counter is the timer peripheral.
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

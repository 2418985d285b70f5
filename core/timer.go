package core

import "time"

// Clock is the time base for the scheduler and bounded waits. It counts
// microseconds and wraps like a hardware timer.
type Clock interface {
	Micros() uint32
}

// SystemClock counts microseconds since it was created.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Micros() uint32 {
	return uint32(time.Since(c.start) / time.Microsecond)
}

// TimerFromMS converts milliseconds to clock ticks.
func TimerFromMS(ms uint32) uint32 {
	return ms * 1000
}

// TimerFromDuration converts a duration to clock ticks.
func TimerFromDuration(d time.Duration) uint32 {
	return uint32(d / time.Microsecond)
}

// TimerIsBefore compares two wrapping timestamps.
func TimerIsBefore(t1, t2 uint32) bool {
	return int32(t1-t2) < 0
}

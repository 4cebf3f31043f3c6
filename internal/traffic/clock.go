package traffic

import "time"

// Clock returns a monotonic reading. Only differences between readings are
// meaningful.
type Clock interface {
	Now() time.Duration
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Duration

// Now calls f.
func (f ClockFunc) Now() time.Duration { return f() }

// SystemClock returns the platform clock used for sampling. On Linux it is
// CLOCK_BOOTTIME, which keeps advancing while the system is suspended, so the
// first tick after a resume divides by the real elapsed time.
func SystemClock() Clock {
	return systemClock()
}

var processStart = time.Now()

// runtimeClock reads Go's monotonic clock relative to process start.
func runtimeClock() time.Duration {
	return time.Since(processStart)
}

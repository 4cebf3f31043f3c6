//go:build linux

package traffic

import (
	"time"

	"golang.org/x/sys/unix"
)

func systemClock() Clock {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return ClockFunc(runtimeClock)
	}
	return ClockFunc(bootTime)
}

func bootTime() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		// A zero reading makes the next elapsed time non-positive, which the
		// sampler reports as a zero-speed tick.
		return 0
	}
	return time.Duration(ts.Nano())
}

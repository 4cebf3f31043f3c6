//go:build !linux

package traffic

func systemClock() Clock {
	return ClockFunc(runtimeClock)
}

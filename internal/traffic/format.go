package traffic

import (
	"fmt"
	"time"
)

const (
	// Binary unit multipliers (1024-based).
	kib = 1024
	mib = kib * 1024
	gib = mib * 1024
	tib = gib * 1024
)

// KiBPerSecond converts a bytes-per-second speed into KiB/s, the unit used
// when speeds are shown to users.
func KiBPerSecond(bytesPerSec uint64) float64 {
	return float64(bytesPerSec) / kib
}

// FormatBytes formats a byte count using binary units (KiB, MiB, GiB, TiB).
func FormatBytes(bytes uint64) string {
	switch {
	case bytes >= tib:
		return fmt.Sprintf("%.1f TiB", float64(bytes)/float64(tib))
	case bytes >= gib:
		return fmt.Sprintf("%.1f GiB", float64(bytes)/float64(gib))
	case bytes >= mib:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/float64(mib))
	case bytes >= kib:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/float64(kib))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatRate formats a bytes-per-second speed using binary units.
func FormatRate(bytesPerSec uint64) string {
	switch {
	case bytesPerSec >= gib:
		return fmt.Sprintf("%.1f GiB/s", float64(bytesPerSec)/float64(gib))
	case bytesPerSec >= mib:
		return fmt.Sprintf("%.1f MiB/s", float64(bytesPerSec)/float64(mib))
	case bytesPerSec >= kib:
		return fmt.Sprintf("%.1f KiB/s", float64(bytesPerSec)/float64(kib))
	default:
		return fmt.Sprintf("%d B/s", bytesPerSec)
	}
}

// FormatInterval formats a sampling interval compactly, e.g. "1s" or "250ms".
func FormatInterval(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

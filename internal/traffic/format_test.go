package traffic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name     string
		bytes    uint64
		expected string
	}{
		{"zero", 0, "0 B"},
		{"one byte", 1, "1 B"},
		{"just under 1 KiB", 1023, "1023 B"},
		{"exactly 1 KiB", 1024, "1.0 KiB"},
		{"1.5 KiB", 1536, "1.5 KiB"},
		{"just under 1 MiB", 1024*1024 - 1, "1024.0 KiB"},
		{"exactly 1 MiB", 1024 * 1024, "1.0 MiB"},
		{"exactly 1 GiB", 1024 * 1024 * 1024, "1.0 GiB"},
		{"exactly 1 TiB", 1024 * 1024 * 1024 * 1024, "1.0 TiB"},
		{"large value", 1024 * 1024 * 1024 * 1024 * 10, "10.0 TiB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatBytes(tt.bytes))
		})
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		name        string
		bytesPerSec uint64
		expected    string
	}{
		{"zero", 0, "0 B/s"},
		{"one byte per second", 1, "1 B/s"},
		{"just under 1 KiB/s", 1023, "1023 B/s"},
		{"exactly 1 KiB/s", 1024, "1.0 KiB/s"},
		{"1.5 KiB/s", 1536, "1.5 KiB/s"},
		{"exactly 1 MiB/s", 1024 * 1024, "1.0 MiB/s"},
		{"exactly 1 GiB/s", 1024 * 1024 * 1024, "1.0 GiB/s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatRate(tt.bytesPerSec))
		})
	}
}

func TestKiBPerSecond(t *testing.T) {
	assert.Equal(t, 0.0, KiBPerSecond(0))
	assert.Equal(t, 1.0, KiBPerSecond(1024))
	assert.InDelta(t, 0.5, KiBPerSecond(512), 1e-9)
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		expected string
	}{
		{"sub-second", 250 * time.Millisecond, "250ms"},
		{"minimum", MinInterval, "100ms"},
		{"one second", time.Second, "1s"},
		{"fractional seconds", 1500 * time.Millisecond, "1.5s"},
		{"rounded", 2345 * time.Millisecond, "2.3s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatInterval(tt.interval))
		})
	}
}

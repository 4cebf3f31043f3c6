package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// notifySystemd sends a state string to the socket named by NOTIFY_SOCKET.
func notifySystemd(state string) {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return
	}
	if err := sendNotify(socketPath, state); err != nil {
		slog.Warn("Failed to notify systemd", "error", err)
	}
}

func sendNotify(socketPath, state string) error {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("failed to create notify socket: %w", err)
	}
	defer unix.Close(fd)

	// A leading @ names a socket in the abstract namespace.
	name := socketPath
	if len(name) > 0 && name[0] == '@' {
		name = "\x00" + name[1:]
	}
	return unix.Sendto(fd, []byte(state), 0, &unix.SockaddrUnix{Name: name})
}

// watchdogInterval parses WATCHDOG_USEC and returns half of it, the interval
// at which keep-alives are sent.
func watchdogInterval(value string) (time.Duration, error) {
	usec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid WATCHDOG_USEC %q: %w", value, err)
	}
	if usec <= 0 {
		return 0, fmt.Errorf("invalid WATCHDOG_USEC %q: must be positive", value)
	}
	return time.Duration(usec) * time.Microsecond / 2, nil
}

// watchdogLoop sends periodic watchdog notifications until ctx is done.
func watchdogLoop(ctx context.Context) {
	value := os.Getenv("WATCHDOG_USEC")
	if value == "" {
		return
	}
	interval, err := watchdogInterval(value)
	if err != nil {
		slog.Warn("Watchdog disabled", "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notifySystemd("WATCHDOG=1")
		}
	}
}

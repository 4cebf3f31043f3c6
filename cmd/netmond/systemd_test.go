package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenNotify(t *testing.T) (*net.UnixConn, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, path
}

func readNotify(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestNotifySystemd(t *testing.T) {
	conn, path := listenNotify(t)
	t.Setenv("NOTIFY_SOCKET", path)

	notifySystemd("READY=1")
	assert.Equal(t, "READY=1", readNotify(t, conn))
}

func TestNotifySystemd_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	assert.NotPanics(t, func() { notifySystemd("READY=1") })
}

func TestSendNotify_MissingSocket(t *testing.T) {
	assert.Error(t, sendNotify(filepath.Join(t.TempDir(), "missing.sock"), "READY=1"))
}

func TestWatchdogInterval(t *testing.T) {
	d, err := watchdogInterval("30000000")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, d)

	_, err = watchdogInterval("soon")
	assert.Error(t, err)
	_, err = watchdogInterval("0")
	assert.Error(t, err)
}

func TestWatchdogLoop(t *testing.T) {
	conn, path := listenNotify(t)
	t.Setenv("NOTIFY_SOCKET", path)
	t.Setenv("WATCHDOG_USEC", "20000")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchdogLoop(ctx)
		close(done)
	}()

	assert.Equal(t, "WATCHDOG=1", readNotify(t, conn))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdogLoop did not return after cancel")
	}
}

func TestWatchdogLoop_Disabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	done := make(chan struct{})
	go func() {
		watchdogLoop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdogLoop should return without WATCHDOG_USEC")
	}
}

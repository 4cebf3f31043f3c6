package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/netmon/internal/cellular"
	"github.com/shini4i/netmon/internal/reachability"
	"github.com/shini4i/netmon/internal/traffic"
)

func TestNewTrayIcon_InitializesCorrectly(t *testing.T) {
	tray := NewTrayIcon()

	assert.Equal(t, reachability.StatusUnknown, tray.snap.Reachability)
	assert.False(t, tray.available)
	assert.NotNil(t, tray.done)
	assert.NotEmpty(t, tray.iconOffline)
	assert.NotEmpty(t, tray.iconViaWiFi)
	assert.False(t, tray.running)
	assert.Nil(t, tray.onStart)
	assert.Nil(t, tray.onStop)
	assert.Nil(t, tray.onQuit)
}

func TestTrayIcon_CallbackRegistration(t *testing.T) {
	tray := NewTrayIcon()

	var started, stopped, quit bool
	require.NoError(t, tray.OnStart(func() { started = true }))
	require.NoError(t, tray.OnStop(func() { stopped = true }))
	require.NoError(t, tray.OnQuit(func() { quit = true }))

	tray.onStart()
	tray.onStop()
	tray.onQuit()

	assert.True(t, started)
	assert.True(t, stopped)
	assert.True(t, quit)
}

func TestTrayIcon_CallbackErrorsAfterRunning(t *testing.T) {
	tray := NewTrayIcon()

	// Run() would block waiting for a tray host.
	tray.mu.Lock()
	tray.running = true
	tray.mu.Unlock()

	assert.ErrorIs(t, tray.OnStart(func() {}), ErrTrayAlreadyRunning)
	assert.ErrorIs(t, tray.OnStop(func() {}), ErrTrayAlreadyRunning)
	assert.ErrorIs(t, tray.OnQuit(func() {}), ErrTrayAlreadyRunning)
	assert.ErrorIs(t, tray.SetNotifier(newNotifier(nil)), ErrTrayAlreadyRunning)
	assert.ErrorIs(t, tray.Run(), ErrTrayRunTwice)
}

func TestTrayIcon_RunErrorsIfMissingCallbacks(t *testing.T) {
	tray := NewTrayIcon()
	_ = tray.OnStart(func() {})
	_ = tray.OnQuit(func() {})

	assert.ErrorIs(t, tray.Run(), ErrTrayMissingCallbacks)
	assert.False(t, tray.running)
}

func TestTrayIcon_QuitSafeToCallMultipleTimes(t *testing.T) {
	tray := NewTrayIcon()

	assert.NotPanics(t, tray.Quit)
	assert.NotPanics(t, tray.Quit)

	select {
	case <-tray.done:
	default:
		t.Fatal("done channel should be closed after Quit()")
	}
}

func TestTrayIcon_SnapshotState(t *testing.T) {
	tray := NewTrayIcon()

	tray.SetSnapshot(Snapshot{Reachability: reachability.StatusViaWWAN, Monitoring: true})
	tray.mu.RLock()
	assert.True(t, tray.available)
	assert.Equal(t, tray.iconViaWWAN, tray.iconFor())
	assert.Equal(t, "Reachability: Reachable via cellular", tray.statusText())
	tray.mu.RUnlock()

	tray.SetUnavailable(errors.New("netmond not available"))
	tray.mu.RLock()
	assert.False(t, tray.available)
	assert.Equal(t, tray.iconOffline, tray.iconFor())
	assert.Equal(t, "Unavailable: netmond not available", tray.statusText())
	assert.Equal(t, "netmon - unavailable", tray.tooltip())
	tray.mu.RUnlock()
}

func TestTrayIcon_IconForReachability(t *testing.T) {
	tray := NewTrayIcon()
	tests := []struct {
		status   reachability.Status
		expected []byte
	}{
		{reachability.StatusViaWiFi, tray.iconViaWiFi},
		{reachability.StatusViaWWAN, tray.iconViaWWAN},
		{reachability.StatusNotReachable, tray.iconUnreachable},
		{reachability.StatusUnknown, tray.iconOffline},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			tray.SetSnapshot(Snapshot{Reachability: tt.status})
			tray.mu.RLock()
			defer tray.mu.RUnlock()
			assert.Equal(t, tt.expected, tray.iconFor())
		})
	}
}

func TestTrayIcon_Tooltip(t *testing.T) {
	tray := NewTrayIcon()

	tray.SetSnapshot(Snapshot{
		Speeds:       traffic.NewSpeedState(0, 2048, 0),
		Monitoring:   true,
		Reachability: reachability.StatusViaWiFi,
	})
	tray.mu.RLock()
	assert.Equal(t, "netmon - Reachable via Wi-Fi, 2.0 KiB/s total", tray.tooltip())
	tray.mu.RUnlock()

	tray.SetSnapshot(Snapshot{Reachability: reachability.StatusNotReachable})
	tray.mu.RLock()
	assert.Equal(t, "netmon - Not reachable, monitoring stopped", tray.tooltip())
	tray.mu.RUnlock()
}

func TestTrayTitle(t *testing.T) {
	running := Snapshot{Speeds: traffic.NewSpeedState(512, 0, 0), Monitoring: true}
	assert.Equal(t, "0.5 KB/s", trayTitle(running, true))
	assert.Equal(t, "paused", trayTitle(Snapshot{}, true))
	assert.Equal(t, "netmon", trayTitle(running, false))
}

func TestCellularText(t *testing.T) {
	assert.Empty(t, cellularText(Snapshot{}))

	s := Snapshot{Cellular: &cellular.Info{
		Operator:      cellular.OperatorChinaTelecom,
		AccessTech:    cellular.AccessTechNR,
		SignalQuality: 64,
	}}
	assert.Equal(t, "china_telecom 5G, signal 64%", cellularText(s))

	s.Cellular.OperatorName = "China Telecom"
	s.Cellular.AccessTech = cellular.AccessTechUnknown
	assert.Equal(t, "China Telecom, signal 64%", cellularText(s))
}

func TestTrayIcon_Follow(t *testing.T) {
	tray := NewTrayIcon()
	src := &fakeSource{snap: Snapshot{Reachability: reachability.StatusViaWiFi, Monitoring: true}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tray.Follow(ctx, src, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		tray.mu.RLock()
		defer tray.mu.RUnlock()
		return tray.available && tray.snap.Reachability == reachability.StatusViaWiFi
	}, 2*time.Second, 5*time.Millisecond)

	src.mu.Lock()
	src.err = errors.New("gone")
	src.mu.Unlock()

	require.Eventually(t, func() bool {
		tray.mu.RLock()
		defer tray.mu.RUnlock()
		return !tray.available
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestTrayIcon_StateAccessConcurrency(t *testing.T) {
	tray := NewTrayIcon()

	iterations := 1000
	if testing.Short() {
		iterations = 100
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				tray.SetSnapshot(Snapshot{Reachability: reachability.StatusViaWWAN})
				tray.SetSnapshot(Snapshot{Reachability: reachability.StatusViaWiFi})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				tray.SetUnavailable(nil)
			}
		}()
	}
	wg.Wait()
}

func TestTrayIcon_ToggleNotifications(t *testing.T) {
	tray := NewTrayIcon()
	assert.False(t, tray.toggleNotifications(), "no notifier to toggle")

	notifier := newNotifier(nil)
	require.NoError(t, tray.SetNotifier(notifier))

	assert.False(t, tray.toggleNotifications())
	assert.False(t, notifier.IsEnabled())
	assert.True(t, tray.toggleNotifications())
	assert.True(t, notifier.IsEnabled())
}

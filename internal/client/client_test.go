package client

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/netmon/internal/daemon/handler"
	"github.com/shini4i/netmon/internal/daemon/protocol"
	"github.com/shini4i/netmon/internal/daemon/server"
	"github.com/shini4i/netmon/internal/reachability"
	"github.com/shini4i/netmon/internal/traffic"
)

type fakeMonitor struct {
	mu      sync.Mutex
	running bool
}

func (f *fakeMonitor) Speeds() traffic.SpeedState { return traffic.NewSpeedState(1024, 2048, 0) }

func (f *fakeMonitor) IsMonitoring() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeMonitor) StartMonitoring() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
}

func (f *fakeMonitor) StopMonitoring() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeMonitor) Interval() time.Duration { return time.Second }

type staticCounters traffic.Counters

func (s staticCounters) ReadCounters() (traffic.Counters, error) {
	return traffic.Counters(s), nil
}

type daemon struct {
	socketPath   string
	server       *server.Server
	reachability *reachability.Publisher
}

func startDaemon(t *testing.T) *daemon {
	t.Helper()
	return startDaemonAt(t, filepath.Join(t.TempDir(), "netmon.sock"))
}

func startDaemonAt(t *testing.T, socketPath string) *daemon {
	t.Helper()
	d := &daemon{
		socketPath:   socketPath,
		reachability: reachability.NewPublisher(nil),
	}

	var srv *server.Server
	h := handler.New(handler.Deps{
		Monitor: &fakeMonitor{running: true},
		Counters: staticCounters{
			traffic.WiFiSent: 10, traffic.WiFiReceived: 20,
			traffic.WWANSent: 100, traffic.WWANReceived: 200,
		},
		Reachability: d.reachability,
		Broadcaster:  func(e *protocol.Event) { srv.Broadcast(e) },
	})
	t.Cleanup(h.Close)

	srv = server.NewServer(d.socketPath, "", h.HandleRequest)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	d.server = srv
	return d
}

func dial(t *testing.T, socketPath string) *Client {
	t.Helper()
	c, err := Dial(socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

func TestDial_NotAvailable(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "missing.sock"))
	assert.ErrorIs(t, err, ErrClientNotAvailable)
	assert.False(t, IsAvailable(filepath.Join(t.TempDir(), "missing.sock")))
}

func TestClient_Speed(t *testing.T) {
	d := startDaemon(t)
	assert.True(t, IsAvailable(d.socketPath))
	c := dial(t, d.socketPath)

	got, err := c.Speed(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, protocol.SpeedResult{
		WWAN: 1024, WiFi: 2048, All: 3072,
		Monitoring: true, IntervalMS: 1000,
	}, got)
}

func TestClient_Bytes(t *testing.T) {
	d := startDaemon(t)
	c := dial(t, d.socketPath)
	ctx := testContext(t)

	got, err := c.Bytes(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "all", got.Types)
	assert.Equal(t, uint64(330), got.Bytes)

	got, err = c.Bytes(ctx, "wifi-sent,wwan-received")
	require.NoError(t, err)
	assert.Equal(t, uint64(210), got.Bytes)

	_, err = c.Bytes(ctx, "ethernet")
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, protocol.ErrCodeInvalidParams, remote.Code)
}

func TestClient_StartStopStatus(t *testing.T) {
	d := startDaemon(t)
	d.reachability.Set(reachability.StatusViaWiFi)
	c := dial(t, d.socketPath)
	ctx := testContext(t)

	running, err := c.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Monitoring)
	assert.Equal(t, reachability.StatusViaWiFi, status.Reachability)
	assert.Nil(t, status.Cellular)

	running, err = c.Start(ctx)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestClient_ConcurrentRequests(t *testing.T) {
	d := startDaemon(t)
	c := dial(t, d.socketPath)
	ctx := testContext(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Speed(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestClient_ReachabilityEvents(t *testing.T) {
	d := startDaemon(t)
	c := dial(t, d.socketPath)

	type change struct{ from, to reachability.Status }
	changes := make(chan change, 4)
	c.OnReachabilityChange(func(from, to reachability.Status) {
		changes <- change{from, to}
	})

	require.Eventually(t, func() bool { return d.server.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	d.reachability.Set(reachability.StatusViaWWAN)

	select {
	case got := <-changes:
		assert.Equal(t, change{reachability.StatusUnknown, reachability.StatusViaWWAN}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no reachability event received")
	}
}

func TestClient_ServerGone(t *testing.T) {
	d := startDaemon(t)
	c := dial(t, d.socketPath)

	require.NoError(t, d.server.Stop())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the closed connection")
	}
	_, err := c.Speed(testContext(t))
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_CloseTwice(t *testing.T) {
	d := startDaemon(t)
	c, err := Dial(d.socketPath)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

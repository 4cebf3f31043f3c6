package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/netmon/internal/cellular"
	"github.com/shini4i/netmon/internal/daemon/protocol"
	"github.com/shini4i/netmon/internal/reachability"
	"github.com/shini4i/netmon/internal/traffic"
)

type fakeDaemon struct {
	speed     protocol.SpeedResult
	status    protocol.StatusResult
	err       error
	monitored []bool
}

func (f *fakeDaemon) Speed(context.Context) (protocol.SpeedResult, error) {
	return f.speed, f.err
}

func (f *fakeDaemon) Status(context.Context) (protocol.StatusResult, error) {
	return f.status, f.err
}

func (f *fakeDaemon) Start(context.Context) (bool, error) {
	f.monitored = append(f.monitored, true)
	return true, f.err
}

func (f *fakeDaemon) Stop(context.Context) (bool, error) {
	f.monitored = append(f.monitored, false)
	return false, f.err
}

func TestClientSource_Snapshot(t *testing.T) {
	info := &cellular.Info{Operator: cellular.OperatorChinaUnicom, AccessTech: cellular.AccessTechWCDMA}
	daemon := &fakeDaemon{
		speed:  protocol.SpeedResult{WWAN: 10, WiFi: 20, AWDL: 30, All: 60, Monitoring: true, IntervalMS: 250},
		status: protocol.StatusResult{Reachability: reachability.StatusViaWWAN, Monitoring: true, Cellular: info},
	}

	snap, err := NewClientSource(daemon).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Snapshot{
		Speeds:       traffic.NewSpeedState(10, 20, 30),
		Monitoring:   true,
		Interval:     250 * time.Millisecond,
		Reachability: reachability.StatusViaWWAN,
		Cellular:     info,
	}, snap)
}

func TestClientSource_Errors(t *testing.T) {
	daemon := &fakeDaemon{err: errors.New("netmond not available")}
	src := NewClientSource(daemon)

	_, err := src.Snapshot(context.Background())
	assert.EqualError(t, err, "netmond not available")

	assert.Error(t, src.SetMonitoring(context.Background(), true))
	assert.Equal(t, []bool{true}, daemon.monitored)
}

type reconnectingDaemon struct {
	fakeDaemon
	attempts int
}

func (r *reconnectingDaemon) AttemptCount() int { return r.attempts }

func TestClientSource_ReportsReconnectAttempts(t *testing.T) {
	unavailable := errors.New("netmond not available")
	daemon := &reconnectingDaemon{fakeDaemon: fakeDaemon{err: unavailable}, attempts: 3}

	_, err := NewClientSource(daemon).Snapshot(context.Background())
	assert.EqualError(t, err, "reconnecting to netmond (attempt 3): netmond not available")
	assert.ErrorIs(t, err, unavailable)

	daemon.attempts = 0
	_, err = NewClientSource(daemon).Snapshot(context.Background())
	assert.EqualError(t, err, "netmond not available")
}

func TestLocalSource_Snapshot(t *testing.T) {
	mon := traffic.NewMonitor(traffic.WithInterval(500 * time.Millisecond))
	pub := reachability.NewPublisher(nil)
	pub.Set(reachability.StatusViaWiFi)

	src := NewLocalSource(mon, pub)
	snap, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Monitoring)
	assert.Equal(t, 500*time.Millisecond, snap.Interval)
	assert.Equal(t, reachability.StatusViaWiFi, snap.Reachability)
	assert.Nil(t, snap.Cellular)

	snap, err = NewLocalSource(mon, nil).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reachability.StatusUnknown, snap.Reachability)

	_, err = NewLocalSource(nil, nil).Snapshot(context.Background())
	assert.Error(t, err)
}

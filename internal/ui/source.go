// Package ui provides the terminal dashboard and the system tray indicator
// for netmon.
package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shini4i/netmon/internal/cellular"
	"github.com/shini4i/netmon/internal/client"
	"github.com/shini4i/netmon/internal/daemon/protocol"
	"github.com/shini4i/netmon/internal/reachability"
	"github.com/shini4i/netmon/internal/traffic"
)

// Snapshot is one reading shown by the dashboard and the tray.
type Snapshot struct {
	Speeds       traffic.SpeedState
	Monitoring   bool
	Interval     time.Duration
	Reachability reachability.Status
	Cellular     *cellular.Info
}

// Source provides snapshots. Implementations must be safe for concurrent use.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Controller is implemented by sources that can start and stop monitoring.
type Controller interface {
	SetMonitoring(ctx context.Context, on bool) error
}

// DaemonClient is the subset of the daemon client used by ClientSource.
type DaemonClient interface {
	Speed(ctx context.Context) (protocol.SpeedResult, error)
	Status(ctx context.Context) (protocol.StatusResult, error)
	Start(ctx context.Context) (bool, error)
	Stop(ctx context.Context) (bool, error)
}

// reconnector is implemented by clients that redial after failures.
type reconnector interface {
	AttemptCount() int
}

// ClientSource reads snapshots from a running daemon.
type ClientSource struct {
	client DaemonClient
}

// NewClientSource creates a source backed by the daemon client.
func NewClientSource(c DaemonClient) *ClientSource {
	return &ClientSource{client: c}
}

// Snapshot implements Source.
func (s *ClientSource) Snapshot(ctx context.Context) (Snapshot, error) {
	speed, err := s.client.Speed(ctx)
	if err != nil {
		if r, ok := s.client.(reconnector); ok {
			if n := r.AttemptCount(); n > 0 {
				return Snapshot{}, fmt.Errorf("reconnecting to netmond (attempt %d): %w", n, err)
			}
		}
		return Snapshot{}, err
	}
	status, err := s.client.Status(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Speeds:       traffic.NewSpeedState(speed.WWAN, speed.WiFi, speed.AWDL),
		Monitoring:   speed.Monitoring,
		Interval:     time.Duration(speed.IntervalMS) * time.Millisecond,
		Reachability: status.Reachability,
		Cellular:     status.Cellular,
	}, nil
}

// SetMonitoring implements Controller.
func (s *ClientSource) SetMonitoring(ctx context.Context, on bool) error {
	var err error
	if on {
		_, err = s.client.Start(ctx)
	} else {
		_, err = s.client.Stop(ctx)
	}
	return err
}

// LocalSource reads snapshots from an in-process monitor.
type LocalSource struct {
	monitor      *traffic.Monitor
	reachability *reachability.Publisher
}

// NewLocalSource creates a source backed by monitor. The publisher may be
// nil, in which case reachability is reported as unknown.
func NewLocalSource(monitor *traffic.Monitor, publisher *reachability.Publisher) *LocalSource {
	return &LocalSource{monitor: monitor, reachability: publisher}
}

// Snapshot implements Source.
func (s *LocalSource) Snapshot(context.Context) (Snapshot, error) {
	if s.monitor == nil {
		return Snapshot{}, errors.New("no traffic monitor")
	}
	snap := Snapshot{
		Speeds:       s.monitor.Speeds(),
		Monitoring:   s.monitor.IsMonitoring(),
		Interval:     s.monitor.Interval(),
		Reachability: reachability.StatusUnknown,
	}
	if s.reachability != nil {
		snap.Reachability = s.reachability.Status()
	}
	return snap, nil
}

// SetMonitoring implements Controller.
func (s *LocalSource) SetMonitoring(_ context.Context, on bool) error {
	if s.monitor == nil {
		return errors.New("no traffic monitor")
	}
	if on {
		s.monitor.StartMonitoring()
	} else {
		s.monitor.StopMonitoring()
	}
	return nil
}

var (
	_ Controller   = (*ClientSource)(nil)
	_ Controller   = (*LocalSource)(nil)
	_ Source       = (*ClientSource)(nil)
	_ Source       = (*LocalSource)(nil)
	_ DaemonClient = (*client.Client)(nil)
	_ DaemonClient = (*client.Session)(nil)
)

package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shini4i/netmon/internal/daemon/protocol"
	"github.com/shini4i/netmon/internal/reachability"
)

// DefaultRetryDelay is the minimum time between two dial attempts of a
// Session.
const DefaultRetryDelay = 5 * time.Second

// Session keeps a connection to the daemon and redials after it drops, for
// long-running clients such as the tray indicator. Dialing happens lazily
// on the next request, at most once per retry delay.
// It is safe for concurrent use.
type Session struct {
	socketPath string
	retryDelay time.Duration
	dial       func(socketPath string) (*Client, error)
	now        func() time.Time

	mu                   sync.Mutex
	client               *Client
	attemptCount         int
	nextDial             time.Time
	closed               bool
	onReachabilityChange func(from, to reachability.Status)
}

// NewSession creates a session for the daemon at socketPath. No connection
// is made until the first request. A zero retryDelay uses DefaultRetryDelay.
func NewSession(socketPath string, retryDelay time.Duration) *Session {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Session{
		socketPath: socketPath,
		retryDelay: retryDelay,
		dial:       Dial,
		now:        time.Now,
	}
}

// OnReachabilityChange registers a callback for reachability change events.
// It survives reconnects.
func (s *Session) OnReachabilityChange(callback func(from, to reachability.Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReachabilityChange = callback
	if s.client != nil {
		s.client.OnReachabilityChange(callback)
	}
}

// AttemptCount returns the number of failed dials since the last
// successful one.
func (s *Session) AttemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attemptCount
}

// Close closes the current connection. Later requests fail with
// ErrClientClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// conn returns a live client, dialing when the previous one is gone and the
// retry delay has passed.
func (s *Session) conn() (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClientClosed
	}

	if s.client != nil {
		select {
		case <-s.client.Done():
			slog.Info("Lost connection to netmond")
			_ = s.client.Close()
			s.client = nil
			s.nextDial = time.Time{}
		default:
			return s.client, nil
		}
	}

	if now := s.now(); now.Before(s.nextDial) {
		return nil, ErrClientNotAvailable
	}

	c, err := s.dial(s.socketPath)
	if err != nil {
		s.attemptCount++
		s.nextDial = s.now().Add(s.retryDelay)
		slog.Debug("Dial attempt failed",
			"attempt", s.attemptCount,
			"retry_in", s.retryDelay,
			"error", err)
		return nil, err
	}

	if s.attemptCount > 0 {
		slog.Info("Reconnected to netmond", "attempts", s.attemptCount)
	}
	s.attemptCount = 0
	s.client = c
	if s.onReachabilityChange != nil {
		c.OnReachabilityChange(s.onReachabilityChange)
	}
	return c, nil
}

// drop forgets c after a transport failure so the next request redials.
func (s *Session) drop(c *Client, err error) {
	if !errors.Is(err, ErrClientClosed) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == c {
		_ = c.Close()
		s.client = nil
	}
}

// Speed returns the latest speeds.
func (s *Session) Speed(ctx context.Context) (protocol.SpeedResult, error) {
	c, err := s.conn()
	if err != nil {
		return protocol.SpeedResult{}, err
	}
	result, err := c.Speed(ctx)
	s.drop(c, err)
	return result, err
}

// Bytes returns cumulative counters for a traffic type expression.
func (s *Session) Bytes(ctx context.Context, types string) (protocol.BytesResult, error) {
	c, err := s.conn()
	if err != nil {
		return protocol.BytesResult{}, err
	}
	result, err := c.Bytes(ctx, types)
	s.drop(c, err)
	return result, err
}

// Status returns reachability, monitoring and cellular details.
func (s *Session) Status(ctx context.Context) (protocol.StatusResult, error) {
	c, err := s.conn()
	if err != nil {
		return protocol.StatusResult{}, err
	}
	result, err := c.Status(ctx)
	s.drop(c, err)
	return result, err
}

// Start starts monitoring and reports whether it is running.
func (s *Session) Start(ctx context.Context) (bool, error) {
	c, err := s.conn()
	if err != nil {
		return false, err
	}
	running, err := c.Start(ctx)
	s.drop(c, err)
	return running, err
}

// Stop stops monitoring and reports whether it is still running.
func (s *Session) Stop(ctx context.Context) (bool, error) {
	c, err := s.conn()
	if err != nil {
		return false, err
	}
	running, err := c.Stop(ctx)
	s.drop(c, err)
	return running, err
}

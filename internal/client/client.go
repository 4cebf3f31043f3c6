// Package client provides the client for communicating with the netmond
// daemon.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shini4i/netmon/internal/daemon/protocol"
	"github.com/shini4i/netmon/internal/reachability"
)

const (
	// DefaultTimeout for RPC calls.
	DefaultTimeout = 5 * time.Second
)

var (
	// ErrClientNotAvailable is returned when the daemon is not running.
	ErrClientNotAvailable = errors.New("netmond not available")
	// ErrClientClosed is returned for requests on a closed connection.
	ErrClientClosed = errors.New("client closed")
)

// RemoteError is an error response returned by the daemon.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client is a connection to the daemon. It is safe for concurrent use.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	mu                   sync.RWMutex
	onReachabilityChange func(from, to reachability.Status)

	// writeMu serializes NDJSON writes to prevent interleaved JSON lines
	writeMu sync.Mutex

	// Pending requests waiting for responses
	pendingMu sync.Mutex
	pending   map[string]chan *protocol.Response

	closeChan chan struct{}
	closeOnce sync.Once
}

// Dial connects to the daemon at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientNotAvailable, err)
	}

	c := &Client{
		conn:      conn,
		reader:    bufio.NewReaderSize(conn, 4096),
		pending:   make(map[string]chan *protocol.Response),
		closeChan: make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// IsAvailable checks if the daemon accepts connections at socketPath.
func IsAvailable(socketPath string) bool {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	c.shutdown()
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.closeChan
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.closeChan) })
}

// OnReachabilityChange registers a callback for reachability change events.
func (c *Client) OnReachabilityChange(callback func(from, to reachability.Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReachabilityChange = callback
}

// Speed returns the latest speeds.
func (c *Client) Speed(ctx context.Context) (protocol.SpeedResult, error) {
	var result protocol.SpeedResult
	err := c.call(ctx, protocol.CommandSpeed, nil, &result)
	return result, err
}

// Bytes returns cumulative counters for a traffic type expression. An empty
// expression means all traffic.
func (c *Client) Bytes(ctx context.Context, types string) (protocol.BytesResult, error) {
	var result protocol.BytesResult
	err := c.call(ctx, protocol.CommandBytes, protocol.BytesParams{Types: types}, &result)
	return result, err
}

// Status returns reachability, monitoring and cellular details.
func (c *Client) Status(ctx context.Context) (protocol.StatusResult, error) {
	var result protocol.StatusResult
	err := c.call(ctx, protocol.CommandStatus, nil, &result)
	return result, err
}

// Start starts monitoring and reports whether it is running.
func (c *Client) Start(ctx context.Context) (bool, error) {
	var result protocol.MonitoringResult
	err := c.call(ctx, protocol.CommandStart, nil, &result)
	return result.Monitoring, err
}

// Stop stops monitoring and reports whether it is still running.
func (c *Client) Stop(ctx context.Context) (bool, error) {
	var result protocol.MonitoringResult
	err := c.call(ctx, protocol.CommandStop, nil, &result)
	return result.Monitoring, err
}

func (c *Client) call(ctx context.Context, cmd protocol.Command, params, result interface{}) error {
	resp, err := c.sendRequest(ctx, cmd, params)
	if err != nil {
		return err
	}
	if err := resp.DecodeResult(result); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", cmd, err)
	}
	return nil
}

func (c *Client) sendRequest(ctx context.Context, cmd protocol.Command, params interface{}) (*protocol.Response, error) {
	select {
	case <-c.closeChan:
		return nil, ErrClientClosed
	default:
	}

	id := uuid.New().String()

	req, err := protocol.NewRequest(id, cmd, params)
	if err != nil {
		return nil, err
	}

	respChan := make(chan *protocol.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	_, writeErr := c.conn.Write(data)
	c.writeMu.Unlock()

	if writeErr != nil {
		return nil, fmt.Errorf("failed to send request: %w", writeErr)
	}

	select {
	case resp := <-respChan:
		if !resp.Success {
			if resp.Error != nil {
				return nil, &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
			}
			return nil, errors.New("request failed with unknown error")
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeChan:
		return nil, ErrClientClosed
	}
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				slog.Error("Read error from netmond", "error", err)
			}
			return
		}

		c.handleMessage(line)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg struct {
		Type protocol.MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("Invalid message from netmond", "error", err)
		return
	}

	switch msg.Type {
	case protocol.MessageTypeResponse:
		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Warn("Invalid response from netmond", "error", err)
			return
		}
		c.handleResponse(&resp)

	case protocol.MessageTypeEvent:
		var event protocol.Event
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("Invalid event from netmond", "error", err)
			return
		}
		c.handleEvent(&event)

	default:
		truncated := string(data)
		if len(truncated) > 200 {
			truncated = truncated[:200] + "..."
		}
		slog.Warn("Unknown message type from netmond", "type", msg.Type, "data", truncated)
	}
}

func (c *Client) handleResponse(resp *protocol.Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	c.pendingMu.Unlock()

	if !ok {
		// Connection-level errors carry no request id.
		if resp.Error != nil {
			slog.Warn("Unsolicited error from netmond", "code", resp.Error.Code, "message", resp.Error.Message)
		}
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (c *Client) handleEvent(event *protocol.Event) {
	switch event.Name {
	case protocol.EventReachabilityChange:
		var data protocol.ReachabilityChangeData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			slog.Warn("Invalid reachability event", "error", err)
			return
		}
		c.mu.RLock()
		callback := c.onReachabilityChange
		c.mu.RUnlock()

		if callback != nil {
			callback(data.From, data.To)
		}
	default:
		slog.Debug("Ignoring unknown event", "name", event.Name)
	}
}

// Package handler maps daemon protocol requests onto the traffic monitor,
// the reachability publisher and the cellular reader.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shini4i/netmon/internal/cellular"
	"github.com/shini4i/netmon/internal/daemon/protocol"
	"github.com/shini4i/netmon/internal/reachability"
	"github.com/shini4i/netmon/internal/traffic"
)

// cellularTimeout bounds a ModemManager query during a status request.
const cellularTimeout = 2 * time.Second

// SpeedMonitor is the part of traffic.Monitor the handler uses.
type SpeedMonitor interface {
	Speeds() traffic.SpeedState
	IsMonitoring() bool
	StartMonitoring()
	StopMonitoring()
	Interval() time.Duration
}

// CellularReader reads cellular modem details.
type CellularReader interface {
	Read(ctx context.Context) (cellular.Info, error)
}

// EventBroadcaster is called to broadcast events to all clients.
type EventBroadcaster func(event *protocol.Event)

// Deps are the collaborators of a Handler. Monitor and Counters are
// required; the rest may be nil.
type Deps struct {
	Monitor      SpeedMonitor
	Counters     traffic.CounterSource
	Reachability *reachability.Publisher
	Cellular     CellularReader
	Broadcaster  EventBroadcaster
}

// Handler serves protocol requests.
type Handler struct {
	monitor      SpeedMonitor
	counters     traffic.CounterSource
	reachability *reachability.Publisher
	cellular     CellularReader
	broadcaster  EventBroadcaster

	subscription uuid.UUID

	mu         sync.Mutex
	lastStatus reachability.Status
}

// New creates a handler. When both a publisher and a broadcaster are given,
// reachability changes are broadcast as events until Close.
func New(deps Deps) *Handler {
	if deps.Monitor == nil || deps.Counters == nil {
		panic("handler: New called without monitor or counters")
	}
	h := &Handler{
		monitor:      deps.Monitor,
		counters:     deps.Counters,
		reachability: deps.Reachability,
		cellular:     deps.Cellular,
		broadcaster:  deps.Broadcaster,
		lastStatus:   reachability.StatusUnknown,
	}

	if h.reachability != nil && h.broadcaster != nil {
		h.mu.Lock()
		h.subscription, h.lastStatus = h.reachability.SubscribeCurrent(h.onReachabilityChange)
		h.mu.Unlock()
	}
	return h
}

// Close stops forwarding reachability changes.
func (h *Handler) Close() {
	if h.reachability != nil && h.subscription != uuid.Nil {
		h.reachability.Unsubscribe(h.subscription)
	}
}

// HandleRequest processes a request and returns a response.
func (h *Handler) HandleRequest(req *protocol.Request) *protocol.Response {
	switch req.Command {
	case protocol.CommandSpeed:
		return h.handleSpeed(req)
	case protocol.CommandBytes:
		return h.handleBytes(req)
	case protocol.CommandStatus:
		return h.handleStatus(req)
	case protocol.CommandStart:
		h.monitor.StartMonitoring()
		return success(req.ID, protocol.MonitoringResult{Monitoring: h.monitor.IsMonitoring()})
	case protocol.CommandStop:
		h.monitor.StopMonitoring()
		return success(req.ID, protocol.MonitoringResult{Monitoring: h.monitor.IsMonitoring()})
	default:
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", req.Command))
	}
}

func (h *Handler) handleSpeed(req *protocol.Request) *protocol.Response {
	speeds := h.monitor.Speeds()
	return success(req.ID, protocol.SpeedResult{
		WWAN:       speeds.WWAN,
		WiFi:       speeds.WiFi,
		AWDL:       speeds.AWDL,
		All:        speeds.All,
		Monitoring: h.monitor.IsMonitoring(),
		IntervalMS: h.monitor.Interval().Milliseconds(),
	})
}

func (h *Handler) handleBytes(req *protocol.Request) *protocol.Response {
	var params protocol.BytesParams
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidParams, "invalid bytes params")
		}
	}

	types := traffic.All
	if strings.TrimSpace(params.Types) != "" {
		parsed, err := traffic.ParseTrafficType(params.Types)
		if err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.ErrCodeInvalidParams, err.Error())
		}
		types = parsed
	}

	n, err := traffic.TrafficBytes(h.counters, types)
	if err != nil {
		slog.Warn("Failed to read traffic counters", "error", err)
		return protocol.NewErrorResponse(req.ID, protocol.ErrCodeUnavailable, err.Error())
	}
	return success(req.ID, protocol.BytesResult{Types: types.String(), Bytes: n})
}

func (h *Handler) handleStatus(req *protocol.Request) *protocol.Response {
	result := protocol.StatusResult{
		Reachability: reachability.StatusUnknown,
		Monitoring:   h.monitor.IsMonitoring(),
	}
	if h.reachability != nil {
		result.Reachability = h.reachability.Status()
	}

	if h.cellular != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cellularTimeout)
		info, err := h.cellular.Read(ctx)
		cancel()
		switch {
		case err == nil:
			result.Cellular = &info
		case errors.Is(err, cellular.ErrNoModem):
			// No modem: the field stays empty.
		default:
			slog.Debug("Cellular details unavailable", "error", err)
		}
	}

	return success(req.ID, result)
}

func (h *Handler) onReachabilityChange(status reachability.Status) {
	h.mu.Lock()
	from := h.lastStatus
	h.lastStatus = status
	h.mu.Unlock()

	event, err := protocol.NewEvent(protocol.EventReachabilityChange, protocol.ReachabilityChangeData{
		From: from,
		To:   status,
	})
	if err != nil {
		slog.Error("Failed to create reachability event", "error", err)
		return
	}
	h.broadcaster(event)
}

func success(id string, result interface{}) *protocol.Response {
	resp, err := protocol.NewSuccessResponse(id, result)
	if err != nil {
		return protocol.NewErrorResponse(id, protocol.ErrCodeInternalError, err.Error())
	}
	return resp
}

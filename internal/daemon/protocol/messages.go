// Package protocol defines the messages exchanged between netmon clients and
// the netmond daemon.
//
// The protocol uses newline-delimited JSON (NDJSON) format over a UNIX socket.
// Each message is a single JSON object terminated by a newline character.
package protocol

import (
	"encoding/json"

	"github.com/shini4i/netmon/internal/cellular"
	"github.com/shini4i/netmon/internal/reachability"
)

// MaxMessageSize is the largest accepted message, newline included.
const MaxMessageSize = 64 * 1024

// MessageType identifies the type of message.
type MessageType string

const (
	// MessageTypeRequest is sent from client to server.
	MessageTypeRequest MessageType = "request"
	// MessageTypeResponse is sent from server to client in reply to a request.
	MessageTypeResponse MessageType = "response"
	// MessageTypeEvent is broadcast from server to all connected clients.
	MessageTypeEvent MessageType = "event"
)

// Command identifies the operation to perform.
type Command string

const (
	// CommandSpeed returns the latest per-class speeds.
	CommandSpeed Command = "speed"
	// CommandBytes returns cumulative byte counters for a traffic type mask.
	CommandBytes Command = "bytes"
	// CommandStatus returns reachability, monitoring and cellular details.
	CommandStatus Command = "status"
	// CommandStart starts traffic monitoring.
	CommandStart Command = "start"
	// CommandStop stops traffic monitoring.
	CommandStop Command = "stop"
)

// EventName identifies the type of event.
type EventName string

const (
	// EventReachabilityChange indicates the reachability status changed.
	EventReachabilityChange EventName = "reachability_change"
)

// Request represents a command sent from client to server.
type Request struct {
	// ID is a unique identifier for correlating responses.
	ID string `json:"id"`
	// Type is always "request".
	Type MessageType `json:"type"`
	// Command is the operation to perform.
	Command Command `json:"command"`
	// Params contains command-specific parameters.
	Params json.RawMessage `json:"params,omitempty"`
}

// Response represents a reply from server to client.
type Response struct {
	// ID matches the request ID.
	ID string `json:"id"`
	// Type is always "response".
	Type MessageType `json:"type"`
	// Success indicates whether the command succeeded.
	Success bool `json:"success"`
	// Result contains command-specific result data (if Success is true).
	Result json.RawMessage `json:"result,omitempty"`
	// Error contains error details (if Success is false).
	Error *ErrorInfo `json:"error,omitempty"`
}

// Event represents an asynchronous notification from server to clients.
type Event struct {
	// Type is always "event".
	Type MessageType `json:"type"`
	// Name identifies the event type.
	Name EventName `json:"name"`
	// Data contains event-specific information.
	Data json.RawMessage `json:"data"`
}

// ErrorInfo contains details about an error.
type ErrorInfo struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// BytesParams contains parameters for the bytes command.
type BytesParams struct {
	// Types is a traffic type expression such as "wifi" or "wwan-sent,awdl".
	Types string `json:"types"`
}

// SpeedResult is the result of the speed command. Speeds are in bytes per
// second.
type SpeedResult struct {
	WWAN       uint64 `json:"wwan"`
	WiFi       uint64 `json:"wifi"`
	AWDL       uint64 `json:"awdl"`
	All        uint64 `json:"all"`
	Monitoring bool   `json:"monitoring"`
	IntervalMS int64  `json:"interval_ms"`
}

// BytesResult is the result of the bytes command.
type BytesResult struct {
	// Types is the canonical form of the requested mask.
	Types string `json:"types"`
	// Bytes is the cumulative byte count.
	Bytes uint64 `json:"bytes"`
}

// StatusResult is the result of the status command.
type StatusResult struct {
	Reachability reachability.Status `json:"reachability"`
	Monitoring   bool                `json:"monitoring"`
	// Cellular is set when a modem is present.
	Cellular *cellular.Info `json:"cellular,omitempty"`
}

// MonitoringResult is the result of the start and stop commands.
type MonitoringResult struct {
	Monitoring bool `json:"monitoring"`
}

// ReachabilityChangeData contains data for reachability_change events.
type ReachabilityChangeData struct {
	From reachability.Status `json:"from"`
	To   reachability.Status `json:"to"`
}

// NewRequest creates a new request with the given command and parameters.
// Nil params are omitted.
func NewRequest(id string, cmd Command, params interface{}) (*Request, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return nil, err
		}
	}
	return &Request{
		ID:      id,
		Type:    MessageTypeRequest,
		Command: cmd,
		Params:  paramsJSON,
	}, nil
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result interface{}) (*Response, error) {
	var resultJSON json.RawMessage
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		ID:      id,
		Type:    MessageTypeResponse,
		Success: true,
		Result:  resultJSON,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code string, message string) *Response {
	return &Response{
		ID:      id,
		Type:    MessageTypeResponse,
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewEvent creates a new event with the given name and data.
func NewEvent(name EventName, data interface{}) (*Event, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type: MessageTypeEvent,
		Name: name,
		Data: dataJSON,
	}, nil
}

// DecodeResult unmarshals a successful response's result into v.
func (r *Response) DecodeResult(v interface{}) error {
	if len(r.Result) == 0 {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

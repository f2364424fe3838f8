// Package ws streams bus events to WebSocket clients and accepts requests
// (skill execution, tool calls) over the same connection.
package ws

import (
	"encoding/json"

	"github.com/dohr-michael/bizclaw/internal/events"
)

// FrameType represents the type of WebSocket frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Method represents a WebSocket request method.
type Method string

const (
	MethodSubscribe    Method = "subscribe"     // params: SubscribeParams
	MethodListSkills   Method = "list_skills"   // no params
	MethodExecuteSkill Method = "execute_skill" // params: {name, context}
	MethodListTools    Method = "list_tools"    // no params
	MethodCallTool     Method = "call_tool"     // params: {name, arguments}
)

// Frame is the WebSocket protocol envelope.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
	RunID   string          `json:"run_id,omitempty"`
}

// SubscribeParams narrows the events a client receives. Empty fields match all.
type SubscribeParams struct {
	Types []string `json:"types,omitempty"`
	RunID string   `json:"run_id,omitempty"`
}

// Query converts the params to a bus query.
func (p SubscribeParams) Query() events.Query {
	q := events.Query{RunID: p.RunID}
	for _, t := range p.Types {
		q.Types = append(q.Types, events.EventType(t))
	}
	return q
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewEventFrame creates a Frame for broadcasting an event.
func NewEventFrame(event, runID string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		RunID:   runID,
		Payload: data,
	}, nil
}

// NewResponseFrame creates a response Frame.
func NewResponseFrame(id string, ok bool, payload any, errMsg string) (Frame, error) {
	f := Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: errMsg,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}

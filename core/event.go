package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags a stream Event.
type EventType string

const (
	EventTextChunk  EventType = "text_chunk"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
)

// Error codes carried by error events.
const (
	ErrorCodeModelProvider = "model_provider_failure"
	ErrorCodeLoopBound     = "loop_bound_exceeded"
	ErrorCodeInternal      = "internal_error"
)

// Event is one record of the outward stream produced while a request is
// processed. It is a flat tagged union; which payload fields are set depends
// on Type:
//
//	text_chunk   Content (a fragment of generated text)
//	tool_call    CallID, Name, Input
//	tool_result  CallID, Name, Result, IsError
//	complete     Content (the full final answer)
//	error        Content (message), ErrorCode
//
// complete and error are terminal: exactly one of them ends a request. After
// emission an Event should be treated as immutable.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Round     int            `json:"round,omitempty"`
	Content   string         `json:"content,omitempty"`
	CallID    string         `json:"call_id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Result    string         `json:"result,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates a bare event of the given type.
func NewEvent(typ EventType) Event {
	return Event{
		ID:        NewID(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// NewTextChunkEvent carries a fragment of streamed model text.
func NewTextChunkEvent(text string) Event {
	e := NewEvent(EventTextChunk)
	e.Content = text
	return e
}

// NewToolCallEvent announces a tool call requested by the model.
func NewToolCallEvent(call ToolCall) Event {
	e := NewEvent(EventToolCall)
	e.CallID = call.ID
	e.Name = call.Name
	e.Input = CloneMap(call.Input)
	return e
}

// NewToolResultEvent reports the outcome of a tool call.
func NewToolResultEvent(res ToolResult) Event {
	e := NewEvent(EventToolResult)
	e.CallID = res.CallID
	e.Name = res.Name
	e.Result = res.Output
	e.IsError = res.IsError
	return e
}

// NewCompleteEvent ends a request successfully with the final answer.
func NewCompleteEvent(text string) Event {
	e := NewEvent(EventComplete)
	e.Content = text
	return e
}

// NewErrorEvent ends a request with a failure.
func NewErrorEvent(code, message string) Event {
	e := NewEvent(EventError)
	e.ErrorCode = code
	e.Content = message
	return e
}

// NewID generates a new unique identifier for events, runs and sessions.
func NewID() string { return uuid.NewString() }

// IsTerminal reports whether the event ends a request.
func (e Event) IsTerminal() bool { return e.Type == EventComplete || e.Type == EventError }

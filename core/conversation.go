package core

import (
	"fmt"
	"sync"
)

// Conversation owns the ordered message history of a session.
//
// Invariants:
//   - History is append-only; messages are never reordered or removed.
//   - Every tool call of an assistant turn receives exactly one tool result
//     before any other user or assistant message is appended.
//   - A tool result message always follows the assistant turn that requested
//     it (possibly after sibling results of the same turn).
//
// Snapshot returns a deep copy so callers cannot mutate history through it.
type Conversation struct {
	mu       sync.RWMutex
	messages []Content
	pending  []ToolCall // unanswered calls of the last assistant turn, model order
}

// NewConversation creates an empty history.
func NewConversation() *Conversation {
	return &Conversation{}
}

// AppendUser appends a user turn.
func (c *Conversation) AppendUser(content Content) error {
	if content.Role == "" {
		content.Role = RoleUser
	}
	if content.Role != RoleUser {
		return fmt.Errorf("%w: expected %s, got %q", ErrInvalidRole, RoleUser, content.Role)
	}
	if content.IsEmpty() {
		return ErrEmptyContent
	}
	for _, p := range content.Parts {
		switch p.(type) {
		case TextPart, DataPart:
		default:
			return fmt.Errorf("user message cannot contain %T", p)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		return fmt.Errorf("%w: %d pending", ErrPendingToolCalls, len(c.pending))
	}
	c.messages = append(c.messages, content.Clone())
	return nil
}

// AppendAssistant appends an assistant turn. Tool call parts become pending
// until answered through AppendToolResult.
func (c *Conversation) AppendAssistant(content Content) error {
	if content.Role == "" {
		content.Role = RoleAssistant
	}
	if content.Role != RoleAssistant {
		return fmt.Errorf("%w: expected %s, got %q", ErrInvalidRole, RoleAssistant, content.Role)
	}
	if content.IsEmpty() {
		return ErrEmptyContent
	}

	seen := map[string]bool{}
	var calls []ToolCall
	for _, p := range content.Parts {
		switch part := p.(type) {
		case TextPart:
		case ToolCallPart:
			id := part.ToolCall.ID
			if id == "" {
				return fmt.Errorf("tool call %q has no id", part.ToolCall.Name)
			}
			if seen[id] {
				return fmt.Errorf("duplicate tool call id %q", id)
			}
			seen[id] = true
			calls = append(calls, part.ToolCall.Clone())
		default:
			return fmt.Errorf("assistant message cannot contain %T", p)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		return fmt.Errorf("%w: %d pending", ErrPendingToolCalls, len(c.pending))
	}
	c.messages = append(c.messages, content.Clone())
	c.pending = calls
	return nil
}

// AppendToolResult appends the result of one pending tool call as a tool message.
func (c *Conversation) AppendToolResult(res ToolResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, call := range c.pending {
		if call.ID == res.CallID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: call id %q", ErrUnmatchedToolResult, res.CallID)
	}
	if res.Name == "" {
		res.Name = c.pending[idx].Name
	}

	c.messages = append(c.messages, Content{Role: RoleTool, Parts: []Part{ToolResultPart{ToolResult: res}}})
	c.pending = append(c.pending[:idx:idx], c.pending[idx+1:]...)
	return nil
}

// AbandonPending answers every pending call with an error result carrying
// reason. It returns the results that were appended.
func (c *Conversation) AbandonPending(reason string) []ToolResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]ToolResult, 0, len(c.pending))
	for _, call := range c.pending {
		res := ToolResult{CallID: call.ID, Name: call.Name, Output: reason, IsError: true}
		c.messages = append(c.messages, Content{Role: RoleTool, Parts: []Part{ToolResultPart{ToolResult: res}}})
		results = append(results, res)
	}
	c.pending = nil
	return results
}

// PendingToolCalls returns a copy of the unanswered calls in model order.
func (c *Conversation) PendingToolCalls() []ToolCall {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ToolCall, len(c.pending))
	for i, call := range c.pending {
		out[i] = call.Clone()
	}
	return out
}

// Snapshot returns a deep copy of the ordered history.
func (c *Conversation) Snapshot() []Content {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Content, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

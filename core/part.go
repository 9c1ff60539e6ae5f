package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the conversation roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// DataPart is a structured data segment supplied by the client.
type DataPart struct {
	Data map[string]any
}

func (DataPart) isPart() {}

// ToolCall is a model request to invoke a registered tool.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
	// RawInput holds the provider's argument payload when it could not be
	// decoded into Input. The executor reports it as invalid input.
	RawInput string `json:"raw_input,omitempty"`
}

// ToolCallPart wraps a ToolCall as a content part.
type ToolCallPart struct {
	ToolCall ToolCall
}

func (ToolCallPart) isPart() {}

// ToolResult is the outcome of a single ToolCall. Output is always text the
// model can read; IsError marks failures that were turned into content.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolResultPart wraps a ToolResult as a content part.
type ToolResultPart struct {
	ToolResult ToolResult
}

func (ToolResultPart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  Role
	Parts []Part
}

// NewTextContent builds a single text part message.
func NewTextContent(role Role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts.
func (c Content) Text() string {
	var sb strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the tool call parts in their original order.
func (c Content) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range c.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc.ToolCall)
		}
	}
	return calls
}

// ToolResults returns the tool result parts in their original order.
func (c Content) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range c.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			results = append(results, tr.ToolResult)
		}
	}
	return results
}

// IsEmpty reports whether the content carries nothing a model could read.
func (c Content) IsEmpty() bool {
	for _, p := range c.Parts {
		switch part := p.(type) {
		case TextPart:
			if strings.TrimSpace(part.Text) != "" {
				return false
			}
		case DataPart:
			if len(part.Data) > 0 {
				return false
			}
		case ToolCallPart, ToolResultPart:
			return false
		}
	}
	return true
}

// Clone returns a deep copy; maps inside data parts and tool inputs are copied too.
func (c Content) Clone() Content {
	out := Content{Role: c.Role, Parts: make([]Part, len(c.Parts))}
	for i, p := range c.Parts {
		switch part := p.(type) {
		case DataPart:
			out.Parts[i] = DataPart{Data: CloneMap(part.Data)}
		case ToolCallPart:
			out.Parts[i] = ToolCallPart{ToolCall: part.ToolCall.Clone()}
		default:
			out.Parts[i] = p
		}
	}
	return out
}

// Clone returns a deep copy of the call.
func (tc ToolCall) Clone() ToolCall {
	tc.Input = CloneMap(tc.Input)
	return tc
}

// CloneMap deep-copies JSON-like maps (nested maps and slices).
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = cloneValue(item)
		}
		return cp
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// wirePart is the tagged JSON shape of a Part.
type wirePart struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name,omitempty"`
	Input   map[string]any `json:"input,omitempty"`
	CallID  string         `json:"call_id,omitempty"`
	Output  string         `json:"output,omitempty"`
	IsError bool           `json:"is_error,omitempty"`
}

// MarshalJSON encodes content as {"role": ..., "parts": [{"type": ...}, ...]}.
func (c Content) MarshalJSON() ([]byte, error) {
	parts := make([]wirePart, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch part := p.(type) {
		case TextPart:
			parts = append(parts, wirePart{Type: "text", Text: part.Text})
		case DataPart:
			parts = append(parts, wirePart{Type: "data", Data: part.Data})
		case ToolCallPart:
			parts = append(parts, wirePart{Type: "tool_call", ID: part.ToolCall.ID, Name: part.ToolCall.Name, Input: part.ToolCall.Input})
		case ToolResultPart:
			r := part.ToolResult
			parts = append(parts, wirePart{Type: "tool_result", CallID: r.CallID, Name: r.Name, Output: r.Output, IsError: r.IsError})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}
	return json.Marshal(struct {
		Role  Role       `json:"role"`
		Parts []wirePart `json:"parts"`
	}{Role: c.Role, Parts: parts})
}

// UnmarshalJSON decodes the format produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  Role       `json:"role"`
		Parts []wirePart `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parts, err := decodeParts(raw.Parts)
	if err != nil {
		return err
	}
	c.Role = raw.Role
	c.Parts = parts
	return nil
}

// ParseUserContent decodes a client supplied message: either a JSON string or
// an array of {"type":"text","text":...} / {"type":"data","data":{...}} blocks.
func ParseUserContent(data json.RawMessage) (Content, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return Content{}, ErrEmptyContent
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c := NewTextContent(RoleUser, text)
		if c.IsEmpty() {
			return Content{}, ErrEmptyContent
		}
		return c, nil
	}
	var blocks []wirePart
	if err := json.Unmarshal(data, &blocks); err != nil {
		return Content{}, fmt.Errorf("message must be a string or a list of content blocks: %w", err)
	}
	for _, b := range blocks {
		if b.Type != "text" && b.Type != "data" {
			return Content{}, fmt.Errorf("unsupported user content block %q", b.Type)
		}
	}
	parts, err := decodeParts(blocks)
	if err != nil {
		return Content{}, err
	}
	c := Content{Role: RoleUser, Parts: parts}
	if c.IsEmpty() {
		return Content{}, ErrEmptyContent
	}
	return c, nil
}

func decodeParts(in []wirePart) ([]Part, error) {
	parts := make([]Part, 0, len(in))
	for _, wp := range in {
		switch wp.Type {
		case "text":
			parts = append(parts, TextPart{Text: wp.Text})
		case "data":
			parts = append(parts, DataPart{Data: wp.Data})
		case "tool_call":
			parts = append(parts, ToolCallPart{ToolCall: ToolCall{ID: wp.ID, Name: wp.Name, Input: wp.Input}})
		case "tool_result":
			parts = append(parts, ToolResultPart{ToolResult: ToolResult{CallID: wp.CallID, Name: wp.Name, Output: wp.Output, IsError: wp.IsError}})
		default:
			return nil, fmt.Errorf("unknown part type %q", wp.Type)
		}
	}
	return parts, nil
}

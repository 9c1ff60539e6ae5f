package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/docsmesh/core"
)

// ErrMalformedResponse reports a provider stream that ended without a final response.
var ErrMalformedResponse = errors.New("model returned no final response")

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the agent loop.
type Request struct {
	Instructions string           `json:"instructions"` // system prompt
	Messages     []core.Content   `json:"messages"`     // conversation snapshot, oldest first
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a partial or final chunk emitted by a model.
//
// Partial responses carry text fragments only. Exactly one final response
// (Partial == false) ends a successful generation and carries the complete
// assistant turn: all text plus every tool call in model order.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", ...
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the agent loop to drive generation.
//
// Generate streams responses on the first channel and reports at most one
// error on the second. Both channels are closed when generation ends.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// RenderUserText flattens user content for providers that accept plain text.
// Data parts are rendered as JSON.
func RenderUserText(c core.Content) string {
	var sb strings.Builder
	for _, p := range c.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(part.Text)
		case core.DataPart:
			b, err := json.Marshal(part.Data)
			if err != nil {
				b = []byte(fmt.Sprint(part.Data))
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.Write(b)
		}
	}
	return sb.String()
}

// ParseToolInput decodes provider supplied JSON arguments. On failure the call
// keeps the raw payload and a nil Input so the executor can report it.
func ParseToolInput(id, name string, raw []byte) core.ToolCall {
	call := core.ToolCall{ID: id, Name: name}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		call.Input = map[string]any{}
		return call
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(trimmed), &input); err != nil {
		call.RawInput = trimmed
		return call
	}
	if input == nil {
		input = map[string]any{}
	}
	call.Input = input
	return call
}

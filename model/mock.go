package model

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/docsmesh/core"
)

// ErrScriptExhausted is returned when a ScriptedModel runs out of turns.
var ErrScriptExhausted = errors.New("scripted model has no more turns")

// Turn is one scripted model response.
type Turn struct {
	// Chunks are streamed as partial text; the final text is their
	// concatenation unless Text is set.
	Chunks    []string
	Text      string
	ToolCalls []core.ToolCall
	// Err fails the generation (after streaming Chunks).
	Err error
	// Delay waits before responding; Block waits until the context is done.
	Delay time.Duration
	Block bool
	// NoFinal ends the stream without a final response.
	NoFinal bool
}

// TextTurn answers with text streamed word by word.
func TextTurn(text string) Turn {
	fields := strings.SplitAfter(text, " ")
	return Turn{Chunks: fields, Text: text}
}

// ToolTurn requests the given tool calls, optionally with preamble text.
func ToolTurn(text string, calls ...core.ToolCall) Turn {
	t := Turn{Text: text, ToolCalls: calls}
	if text != "" {
		t.Chunks = []string{text}
	}
	return t
}

// ScriptedModel replays a fixed list of turns and records every request.
// Useful for tests and examples.
type ScriptedModel struct {
	mu       sync.Mutex
	turns    []Turn
	next     int
	requests []Request
}

// NewScriptedModel creates a model answering with turns in order.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{turns: turns}
}

// Requests returns copies of the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	msgs := make([]core.Content, len(req.Messages))
	for i, c := range req.Messages {
		msgs[i] = c.Clone()
	}
	req.Messages = msgs
	m.requests = append(m.requests, req)
	var turn *Turn
	if m.next < len(m.turns) {
		turn = &m.turns[m.next]
		m.next++
	}
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)

		if turn == nil {
			errCh <- ErrScriptExhausted
			return
		}

		if turn.Block {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if turn.Delay > 0 {
			select {
			case <-time.After(turn.Delay):
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if req.Stream {
			for _, c := range turn.Chunks {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, c)}:
				}
			}
		}

		if turn.Err != nil {
			errCh <- turn.Err
			return
		}
		if turn.NoFinal {
			return
		}

		text := turn.Text
		if text == "" {
			text = strings.Join(turn.Chunks, "")
		}
		content := core.Content{Role: core.RoleAssistant}
		if text != "" {
			content.Parts = append(content.Parts, core.TextPart{Text: text})
		}
		finish := "stop"
		for _, call := range turn.ToolCalls {
			content.Parts = append(content.Parts, core.ToolCallPart{ToolCall: call.Clone()})
			finish = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- Response{ID: core.NewID(), Content: content, FinishReason: finish}:
		}
	}()

	return out, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info {
	return Info{Name: "scripted", Provider: "scripted", SupportsTools: true}
}

package testutil

import (
	"testing"

	"github.com/hupe1980/docsmesh/core"
)

// ConversationBuilder builds a history through the Conversation append
// methods, so every built history satisfies the ordering invariants.
//
//	conv := testutil.NewConversationBuilder(t).
//		User("hi").
//		ToolCalls(core.ToolCall{ID: "c1", Name: "echo"}).
//		ToolResult("c1", "ok").
//		Assistant("done").
//		Build()
type ConversationBuilder struct {
	t    testing.TB
	conv *core.Conversation
}

// NewConversationBuilder starts an empty history.
func NewConversationBuilder(t testing.TB) *ConversationBuilder {
	return &ConversationBuilder{t: t, conv: core.NewConversation()}
}

// User appends a user text turn.
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.t.Helper()
	b.check(b.conv.AppendUser(core.NewTextContent(core.RoleUser, text)))
	return b
}

// Assistant appends an assistant text turn.
func (b *ConversationBuilder) Assistant(text string) *ConversationBuilder {
	b.t.Helper()
	b.check(b.conv.AppendAssistant(core.NewTextContent(core.RoleAssistant, text)))
	return b
}

// ToolCalls appends an assistant turn requesting calls. Nil inputs become
// empty objects.
func (b *ConversationBuilder) ToolCalls(calls ...core.ToolCall) *ConversationBuilder {
	b.t.Helper()
	c := core.Content{Role: core.RoleAssistant}
	for _, call := range calls {
		if call.Input == nil {
			call.Input = map[string]any{}
		}
		c.Parts = append(c.Parts, core.ToolCallPart{ToolCall: call})
	}
	b.check(b.conv.AppendAssistant(c))
	return b
}

// ToolResult answers a pending call.
func (b *ConversationBuilder) ToolResult(callID, output string) *ConversationBuilder {
	b.t.Helper()
	b.check(b.conv.AppendToolResult(core.ToolResult{CallID: callID, Output: output}))
	return b
}

// ToolError answers a pending call with an error result.
func (b *ConversationBuilder) ToolError(callID, output string) *ConversationBuilder {
	b.t.Helper()
	b.check(b.conv.AppendToolResult(core.ToolResult{CallID: callID, Output: output, IsError: true}))
	return b
}

// Build returns the conversation.
func (b *ConversationBuilder) Build() *core.Conversation { return b.conv }

func (b *ConversationBuilder) check(err error) {
	b.t.Helper()
	if err != nil {
		b.t.Fatalf("build conversation: %v", err)
	}
}

package model

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/docsmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	t.Helper()
	var out []Response
	for r := range respCh {
		out = append(out, r)
	}
	return out, <-errCh
}

func TestScriptedModel_StreamsAndRecords(t *testing.T) {
	m := NewScriptedModel(
		TextTurn("hello there"),
		ToolTurn("", core.ToolCall{ID: "c1", Name: "search_stackoverflow", Input: map[string]any{"query": "q"}}),
	)

	req := Request{Messages: []core.Content{core.NewTextContent(core.RoleUser, "hi")}, Stream: true}
	resps, err := drain(t, m.Generate(context.Background(), req))
	require.NoError(t, err)
	require.Len(t, resps, 3)
	assert.True(t, resps[0].Partial)
	assert.Equal(t, "hello ", resps[0].Content.Text())
	assert.False(t, resps[2].Partial)
	assert.Equal(t, "hello there", resps[2].Content.Text())

	resps, err = drain(t, m.Generate(context.Background(), req))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, "tool_calls", resps[0].FinishReason)
	assert.Equal(t, "c1", resps[0].Content.ToolCalls()[0].ID)

	_, err = drain(t, m.Generate(context.Background(), req))
	assert.True(t, errors.Is(err, ErrScriptExhausted))
	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, "hi", m.Requests()[0].Messages[0].Text())
}

func TestScriptedModel_Block(t *testing.T) {
	m := NewScriptedModel(Turn{Block: true})
	ctx, cancel := context.WithCancel(context.Background())
	respCh, errCh := m.Generate(ctx, Request{})
	cancel()
	_, err := drain(t, respCh, errCh)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseToolInput(t *testing.T) {
	c := ParseToolInput("1", "x", []byte(`{"a":1}`))
	assert.Equal(t, 1.0, c.Input["a"])
	assert.Empty(t, c.RawInput)

	c = ParseToolInput("1", "x", nil)
	assert.NotNil(t, c.Input)

	c = ParseToolInput("1", "x", []byte(`{"a":`))
	assert.Nil(t, c.Input)
	assert.Equal(t, `{"a":`, c.RawInput)
}

func TestRenderUserText(t *testing.T) {
	c := core.Content{Role: core.RoleUser, Parts: []core.Part{
		core.TextPart{Text: "question"},
		core.DataPart{Data: map[string]any{"current_repo": "a/b"}},
	}}
	assert.Equal(t, "question\n{\"current_repo\":\"a/b\"}", RenderUserText(c))
}

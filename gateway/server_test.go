package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/flow"
	"github.com/hupe1980/docsmesh/model"
	"github.com/hupe1980/docsmesh/runner"
	"github.com/hupe1980/docsmesh/tool"
)

func newTestServer(t *testing.T, m model.Model, optFns ...func(o *Options)) *Server {
	t.Helper()
	reg, err := tool.NewRegistry(tool.NewFunctionTool("echo", "echo", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return "pong", nil
	}))
	require.NoError(t, err)
	r := runner.New(flow.New(m, reg))
	return NewServer(r, optFns...)
}

func parseSSE(t *testing.T, body string) []core.Event {
	t.Helper()
	var events []core.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev core.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func postChat(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServer_ChatStreamsEvents(t *testing.T) {
	m := model.NewScriptedModel(
		model.ToolTurn("", core.ToolCall{ID: "c1", Name: "echo", Input: map[string]any{}}),
		model.TextTurn("All done"),
	)
	s := newTestServer(t, m)

	rec := postChat(s, `{"message":"ping please"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	sessionID := rec.Header().Get(SessionHeader)
	assert.NotEmpty(t, sessionID)

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	var types []core.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
		assert.Equal(t, sessionID, ev.SessionID)
	}
	assert.Equal(t, []core.EventType{
		core.EventToolCall, core.EventToolResult, core.EventTextChunk, core.EventTextChunk, core.EventComplete,
	}, types)
	assert.Equal(t, "pong", events[1].Result)
	assert.Equal(t, "All done", events[len(events)-1].Content)
}

func TestServer_ChatAcceptsContentBlocksAndContext(t *testing.T) {
	m := model.NewScriptedModel(model.TextTurn("ok"))
	s := newTestServer(t, m)

	rec := postChat(s, `{"session_id":"abc","message":[{"type":"text","text":"hello"}],"context":{"current_repo":"octo/hello"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get(SessionHeader))

	req := httptest.NewRequest(http.MethodGet, "/sessions/abc", nil)
	got := httptest.NewRecorder()
	s.ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code)

	var resp struct {
		SessionID string           `json:"session_id"`
		Context   map[string]any   `json:"context"`
		Messages  []map[string]any `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp.SessionID)
	assert.Equal(t, "octo/hello", resp.Context["current_repo"])
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "user", resp.Messages[0]["role"])
	assert.Equal(t, "assistant", resp.Messages[1]["role"])
}

func TestServer_ChatRejectsBadRequests(t *testing.T) {
	s := newTestServer(t, model.NewScriptedModel())

	cases := map[string]string{
		"not json":      `{`,
		"missing":       `{}`,
		"blank string":  `{"message":"   "}`,
		"unknown block": `{"message":[{"type":"tool_call","name":"x"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postChat(s, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
			assert.Empty(t, rec.Header().Get(SessionHeader))
		})
	}
}

func TestServer_PreflightFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"missing credentials", fmt.Errorf("%w: ANTHROPIC_API_KEY", core.ErrMissingCredentials), http.StatusInternalServerError},
		{"dependency unavailable", fmt.Errorf("%w: documentation store", core.ErrDependencyUnavailable), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.NewScriptedModel(model.TextTurn("never"))
			s := newTestServer(t, m, func(o *Options) {
				o.Preflight = func(context.Context) error { return tt.err }
			})

			rec := postChat(s, `{"message":"hi"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), "data: ")
			assert.Zero(t, m.Calls())
		})
	}
}

func TestServer_ModelFailureIsStreamed(t *testing.T) {
	s := newTestServer(t, model.NewScriptedModel(model.Turn{Err: fmt.Errorf("overloaded")}))

	rec := postChat(s, `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, core.EventError, events[0].Type)
	assert.Equal(t, core.ErrorCodeModelProvider, events[0].ErrorCode)
}

func TestServer_SessionNotFoundAndDelete(t *testing.T) {
	s := newTestServer(t, model.NewScriptedModel(model.TextTurn("ok")))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, postChat(s, `{"session_id":"s1","message":"hi"}`).Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/s1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/s1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting again, or deleting an id that never existed, succeeds.
	for _, id := range []string{"s1", "never"} {
		rec = httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/"+id, nil))
		assert.Equal(t, http.StatusNoContent, rec.Code, id)
	}
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, model.NewScriptedModel())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	degraded := newTestServer(t, model.NewScriptedModel(), func(o *Options) {
		o.Preflight = func(context.Context) error { return core.ErrDependencyUnavailable }
	})
	rec = httptest.NewRecorder()
	degraded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestServer_ClientDisconnectCancelsRun(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Block: true})
	s := newTestServer(t, m, func(o *Options) { o.Heartbeat = 0 })

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Calls() == 1 }, testTimeout, testTick)
	cancel()
	<-done

	assert.Empty(t, parseSSE(t, rec.Body.String()))
	assert.Eventually(t, func() bool { return s.runner.ActiveRuns() == 0 }, testTimeout, testTick)
}

package core

import (
	"encoding/json"
	"testing"
)

func TestEvent_Constructors(t *testing.T) {
	chunk := NewTextChunkEvent("hel")
	if chunk.Type != EventTextChunk || chunk.Content != "hel" || chunk.ID == "" || chunk.Timestamp.IsZero() {
		t.Fatalf("text chunk malformed: %+v", chunk)
	}
	if chunk.IsTerminal() {
		t.Error("text chunk must not be terminal")
	}

	input := map[string]any{"must_include": "routing"}
	call := NewToolCallEvent(ToolCall{ID: "c1", Name: "list_documentation_pages", Input: input})
	if call.CallID != "c1" || call.Name != "list_documentation_pages" || call.Input["must_include"] != "routing" {
		t.Fatalf("tool call malformed: %+v", call)
	}
	input["must_include"] = "changed"
	if call.Input["must_include"] != "routing" {
		t.Error("tool call event must copy its input")
	}

	res := NewToolResultEvent(ToolResult{CallID: "c1", Name: "x", Output: "Unknown tool: x", IsError: true})
	if res.Type != EventToolResult || res.Result != "Unknown tool: x" || !res.IsError {
		t.Fatalf("tool result malformed: %+v", res)
	}

	done := NewCompleteEvent("answer")
	if !done.IsTerminal() || done.Content != "answer" {
		t.Fatalf("complete malformed: %+v", done)
	}

	failed := NewErrorEvent(ErrorCodeLoopBound, "too many rounds")
	if !failed.IsTerminal() || failed.ErrorCode != "loop_bound_exceeded" {
		t.Fatalf("error malformed: %+v", failed)
	}
}

func TestEvent_IDUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		e := NewEvent(EventTextChunk)
		if seen[e.ID] {
			t.Fatalf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestEvent_JSONShape(t *testing.T) {
	e := NewTextChunkEvent("hi")
	e.Timestamp = e.Timestamp.Truncate(0)
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != "text_chunk" || m["content"] != "hi" {
		t.Fatalf("unexpected json: %s", b)
	}
	if _, ok := m["call_id"]; ok {
		t.Errorf("empty fields should be omitted: %s", b)
	}
}

func TestContent_JSONRoundTrip(t *testing.T) {
	c := Content{Role: RoleAssistant, Parts: []Part{
		TextPart{Text: "looking"},
		ToolCallPart{ToolCall: ToolCall{ID: "c1", Name: "get_page_content", Input: map[string]any{"url": "https://x"}}},
	}}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var back Content
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Role != RoleAssistant || back.Text() != "looking" || len(back.ToolCalls()) != 1 {
		t.Fatalf("round trip lost data: %+v", back)
	}
	if back.ToolCalls()[0].Input["url"] != "https://x" {
		t.Fatalf("tool input lost: %+v", back.ToolCalls()[0])
	}
}

func TestParseUserContent(t *testing.T) {
	c, err := ParseUserContent(json.RawMessage(`"How do I add a route?"`))
	if err != nil || c.Text() != "How do I add a route?" || c.Role != RoleUser {
		t.Fatalf("string message: %+v %v", c, err)
	}

	c, err = ParseUserContent(json.RawMessage(`[{"type":"text","text":"see"},{"type":"data","data":{"k":1}}]`))
	if err != nil || len(c.Parts) != 2 {
		t.Fatalf("block message: %+v %v", c, err)
	}

	for _, raw := range []string{``, `null`, `"   "`, `[]`} {
		if _, err := ParseUserContent(json.RawMessage(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}

	if _, err := ParseUserContent(json.RawMessage(`[{"type":"tool_result","call_id":"x"}]`)); err == nil {
		t.Error("tool result blocks must be rejected in user content")
	}
	if _, err := ParseUserContent(json.RawMessage(`42`)); err == nil {
		t.Error("numbers must be rejected")
	}
}

func TestContent_CloneIsDeep(t *testing.T) {
	orig := Content{Role: RoleUser, Parts: []Part{DataPart{Data: map[string]any{"files": []any{"a"}}}}}
	cp := orig.Clone()
	cp.Parts[0].(DataPart).Data["files"].([]any)[0] = "b"
	if orig.Parts[0].(DataPart).Data["files"].([]any)[0] != "a" {
		t.Fatal("clone shares nested slices")
	}
}

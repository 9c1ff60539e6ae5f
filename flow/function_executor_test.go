package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/internal/util"
	"github.com/hupe1980/docsmesh/logging"
	"github.com/hupe1980/docsmesh/tool"
)

type teMockTool struct {
	name     string
	params   map[string]any
	delay    time.Duration
	result   any
	err      error
	panicMsg any
	calls    atomic.Int32
	seenRepo atomic.Value
}

func (mt *teMockTool) Name() string        { return mt.name }
func (mt *teMockTool) Description() string { return "mock tool" }
func (mt *teMockTool) Parameters() map[string]any {
	if mt.params != nil {
		return mt.params
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (mt *teMockTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	mt.calls.Add(1)
	mt.seenRepo.Store(tc.WorkingContextString("current_repo"))
	if mt.delay > 0 {
		select {
		case <-time.After(mt.delay):
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	}
	if mt.panicMsg != nil {
		panic(mt.panicMsg)
	}
	return mt.result, mt.err
}

func newTERunContext(ctx context.Context) *core.RunContext {
	return core.NewRunContext(ctx, "sess", "run", core.NewTextContent(core.RoleUser, "msg"), nil,
		map[string]any{"current_repo": "octo/hello"}, 0, logging.NoOpLogger{})
}

func newTEExecutor(t *testing.T, cfg ExecutorConfig, tools ...tool.Tool) ToolExecutor {
	t.Helper()
	reg, err := tool.NewRegistry(tools...)
	require.NoError(t, err)
	if cfg.Truncator == nil {
		cfg.Truncator = util.RuneTruncator{RunesPerToken: 1}
	}
	return NewParallelToolExecutor(reg, cfg)
}

func call(id, name string, input map[string]any) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Input: input}
}

func TestFunctionExecutor_Single(t *testing.T) {
	mt := &teMockTool{name: "echo", result: "ok"}
	exec := newTEExecutor(t, DefaultExecutorConfig(), mt)

	res := exec.Execute(context.Background(), newTERunContext(context.Background()), call("c1", "echo", nil))

	assert.Equal(t, core.ToolResult{CallID: "c1", Name: "echo", Output: "ok"}, res)
	assert.Equal(t, "octo/hello", mt.seenRepo.Load())
}

func TestFunctionExecutor_RendersStructuredOutput(t *testing.T) {
	mt := &teMockTool{name: "pages", result: []string{"a", "b"}}
	exec := newTEExecutor(t, DefaultExecutorConfig(), mt)

	res := exec.Execute(context.Background(), newTERunContext(context.Background()), call("c1", "pages", map[string]any{}))
	assert.False(t, res.IsError)
	assert.Equal(t, `["a","b"]`, res.Output)
}

func TestFunctionExecutor_UnknownTool(t *testing.T) {
	exec := newTEExecutor(t, DefaultExecutorConfig())

	res := exec.Execute(context.Background(), newTERunContext(context.Background()), call("c1", "nope", nil))
	assert.True(t, res.IsError)
	assert.Equal(t, "Unknown tool: nope", res.Output)
}

func TestFunctionExecutor_InvalidInput(t *testing.T) {
	mt := &teMockTool{name: "get_page_content", result: "never", params: map[string]any{
		"type":       "object",
		"properties": map[string]any{"url": map[string]any{"type": "string"}},
		"required":   []string{"url"},
	}}
	exec := newTEExecutor(t, DefaultExecutorConfig(), mt)
	rc := newTERunContext(context.Background())

	t.Run("missing required", func(t *testing.T) {
		res := exec.Execute(context.Background(), rc, call("c1", "get_page_content", map[string]any{}))
		assert.True(t, res.IsError)
		assert.Equal(t, "Invalid input for get_page_content: url: required field is missing", res.Output)
	})

	t.Run("wrong type", func(t *testing.T) {
		res := exec.Execute(context.Background(), rc, call("c2", "get_page_content", map[string]any{"url": 42.0}))
		assert.True(t, res.IsError)
		assert.Contains(t, res.Output, "expected type string")
	})

	t.Run("unparseable arguments", func(t *testing.T) {
		res := exec.Execute(context.Background(), rc, core.ToolCall{ID: "c3", Name: "get_page_content", RawInput: "{bad"})
		assert.True(t, res.IsError)
		assert.Equal(t, "Invalid input for get_page_content: arguments are not valid JSON", res.Output)
	})

	assert.Zero(t, mt.calls.Load())
}

func TestFunctionExecutor_ErrorIsolation(t *testing.T) {
	good := &teMockTool{name: "good", result: "fine"}
	bad := &teMockTool{name: "bad", err: errors.New("upstream unavailable")}
	exec := newTEExecutor(t, DefaultExecutorConfig(), good, bad)

	results := exec.ExecuteBatch(newTERunContext(context.Background()), []core.ToolCall{
		call("1", "bad", nil),
		call("2", "good", nil),
	}, nil)

	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "Error executing bad: upstream unavailable", results[0].Output)
	assert.False(t, results[1].IsError)
	assert.Equal(t, "fine", results[1].Output)
}

func TestFunctionExecutor_PanicRecovery(t *testing.T) {
	mt := &teMockTool{name: "boom", panicMsg: "kaboom"}
	exec := newTEExecutor(t, DefaultExecutorConfig(), mt)

	res := exec.Execute(context.Background(), newTERunContext(context.Background()), call("c1", "boom", nil))
	assert.True(t, res.IsError)
	assert.Equal(t, "Error executing boom: panic: kaboom", res.Output)
}

func TestFunctionExecutor_Timeout(t *testing.T) {
	mt := &teMockTool{name: "slow", delay: time.Second, result: "late"}
	cfg := DefaultExecutorConfig()
	cfg.Timeout = 20 * time.Millisecond
	exec := newTEExecutor(t, cfg, mt)

	start := time.Now()
	res := exec.Execute(context.Background(), newTERunContext(context.Background()), call("c1", "slow", nil))

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, res.IsError)
	assert.Equal(t, "Error executing slow: timed out after 20ms", res.Output)
}

func TestFunctionExecutor_TruncatesOutput(t *testing.T) {
	mt := &teMockTool{name: "big", result: strings.Repeat("x", 50)}
	cfg := DefaultExecutorConfig()
	cfg.MaxOutputTokens = 10
	exec := newTEExecutor(t, cfg, mt)

	res := exec.Execute(context.Background(), newTERunContext(context.Background()), call("c1", "big", nil))
	assert.Equal(t, strings.Repeat("x", 10)+util.TruncationMarker, res.Output)
}

func TestFunctionExecutor_PreserveOrder(t *testing.T) {
	slow := &teMockTool{name: "slow", delay: 60 * time.Millisecond, result: "slow"}
	fast := &teMockTool{name: "fast", result: "fast"}
	cfg := DefaultExecutorConfig()
	cfg.PreserveOrder = true
	exec := newTEExecutor(t, cfg, slow, fast)

	var (
		mu       sync.Mutex
		reported []string
	)
	results := exec.ExecuteBatch(newTERunContext(context.Background()), []core.ToolCall{
		call("1", "slow", nil),
		call("2", "fast", nil),
		call("3", "fast", nil),
	}, func(r core.ToolResult) {
		mu.Lock()
		reported = append(reported, r.CallID)
		mu.Unlock()
	})

	assert.Equal(t, []string{"1", "2", "3"}, reported)
	require.Len(t, results, 3)
	assert.Equal(t, "slow", results[0].Output)
	assert.Equal(t, "fast", results[2].Output)
}

func TestFunctionExecutor_ParallelUnordered(t *testing.T) {
	slow := &teMockTool{name: "slow", delay: 80 * time.Millisecond, result: "slow"}
	fast := &teMockTool{name: "fast", result: "fast"}
	cfg := DefaultExecutorConfig()
	cfg.PreserveOrder = false
	exec := newTEExecutor(t, cfg, slow, fast)

	var reported []string
	start := time.Now()
	results := exec.ExecuteBatch(newTERunContext(context.Background()), []core.ToolCall{
		call("1", "slow", nil),
		call("2", "slow", nil),
		call("3", "fast", nil),
	}, func(r core.ToolResult) {
		reported = append(reported, r.CallID)
	})

	// Both slow calls ran concurrently.
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	require.Len(t, reported, 3)
	assert.Equal(t, "3", reported[0])

	// Returned results stay in model order regardless of completion order.
	ids := []string{results[0].CallID, results[1].CallID, results[2].CallID}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestFunctionExecutor_MaxParallel(t *testing.T) {
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)
	gauge := tool.NewFunctionTool("gauge", "tracks concurrency", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return "ok", nil
	})
	cfg := DefaultExecutorConfig()
	cfg.MaxParallel = 2
	exec := newTEExecutor(t, cfg, gauge)

	calls := make([]core.ToolCall, 6)
	for i := range calls {
		calls[i] = call(string(rune('a'+i)), "gauge", nil)
	}
	results := exec.ExecuteBatch(newTERunContext(context.Background()), calls, nil)

	assert.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFunctionExecutor_CancelledBatch(t *testing.T) {
	mt := &teMockTool{name: "slow", delay: time.Second, result: "late"}
	exec := newTEExecutor(t, DefaultExecutorConfig(), mt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results := exec.ExecuteBatch(newTERunContext(ctx), []core.ToolCall{
		call("1", "slow", nil),
		call("2", "slow", nil),
	}, nil)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.IsError)
	}
}

package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/internal/util"
	"github.com/hupe1980/docsmesh/logging"
	"github.com/hupe1980/docsmesh/tool"
)

// ToolExecutor runs model requested tool calls. Implementations must:
//   - Respect context cancellation
//   - Never panic (recover internally and report an error result)
//   - Produce exactly one ToolResult per incoming ToolCall
//   - Turn every failure into result content instead of returning an error
type ToolExecutor interface {
	Execute(ctx context.Context, runCtx *core.RunContext, call core.ToolCall) core.ToolResult
	ExecuteBatch(runCtx *core.RunContext, calls []core.ToolCall, onResult func(core.ToolResult)) []core.ToolResult
}

// ExecutorConfig configures the default parallel executor.
type ExecutorConfig struct {
	MaxParallel     int           // 0 or <1 => no explicit limit (len(calls))
	PreserveOrder   bool          // if true, report results in model order
	Timeout         time.Duration // per call; 0 disables the bound
	MaxOutputTokens int           // 0 disables truncation
	Truncator       util.Truncator
	LogStartEvents  bool // log a start line per call
}

// DefaultExecutorConfig returns the baseline executor settings.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxParallel:     4,
		PreserveOrder:   true,
		Timeout:         30 * time.Second,
		MaxOutputTokens: 8000,
	}
}

// parallelToolExecutor is the default implementation.
type parallelToolExecutor struct {
	registry *tool.Registry
	cfg      ExecutorConfig
}

// NewParallelToolExecutor constructs a new executor over registry.
func NewParallelToolExecutor(registry *tool.Registry, cfg ExecutorConfig) ToolExecutor {
	if cfg.Truncator == nil {
		cfg.Truncator = util.NewTokenTruncator("gpt-4")
	}
	return &parallelToolExecutor{registry: registry, cfg: cfg}
}

// Execute resolves, validates and invokes a single call.
func (e *parallelToolExecutor) Execute(ctx context.Context, runCtx *core.RunContext, call core.ToolCall) core.ToolResult {
	res := core.ToolResult{CallID: call.ID, Name: call.Name}

	if e.cfg.LogStartEvents {
		runCtx.LogInfo("flow.tool.start", "tool", call.Name, "call_id", call.ID)
	}

	start := time.Now()
	output, err := e.invoke(ctx, runCtx, call)
	dur := time.Since(start)

	if err != nil {
		res.IsError = true
		res.Output = errorOutput(call.Name, err)
	} else {
		res.Output = e.truncate(output)
	}

	logging.RecordToolCall(runCtx.Logger(), call.Name, dur, err == nil, err)

	return res
}

func (e *parallelToolExecutor) invoke(ctx context.Context, runCtx *core.RunContext, call core.ToolCall) (string, error) {
	impl, err := e.registry.Lookup(call.Name)
	if err != nil {
		return "", err
	}

	if call.Input == nil && call.RawInput != "" {
		return "", &tool.ToolError{Tool: call.Name, Message: "arguments are not valid JSON", Code: tool.CodeValidationError}
	}
	args := core.CloneMap(call.Input)
	if args == nil {
		args = map[string]any{}
	}

	if err := e.registry.Validate(call.Name, args); err != nil {
		return "", err
	}

	callCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	toolCtx := core.NewToolContext(callCtx, runCtx, call.ID, call.Name)

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				runCtx.LogError("flow.tool.panic", "tool", call.Name, "call_id", call.ID, "recover", r, "stack", string(debug.Stack()))
				o = outcome{err: &tool.ToolError{Tool: call.Name, Message: fmt.Sprintf("panic: %v", r), Code: tool.CodePanic}}
			}
			done <- o
		}()
		o.result, o.err = impl.Call(toolCtx, args)
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) && callCtx.Err() != nil && ctx.Err() == nil {
				return "", timeoutError(call.Name, e.cfg.Timeout)
			}
			return "", o.err
		}
		return renderOutput(o.result), nil
	case <-callCtx.Done():
		if ctx.Err() == nil {
			return "", timeoutError(call.Name, e.cfg.Timeout)
		}
		return "", &tool.ToolError{Tool: call.Name, Message: ctx.Err().Error(), Code: tool.CodeExecutionError}
	}
}

func timeoutError(name string, d time.Duration) error {
	return &tool.ToolError{Tool: name, Message: fmt.Sprintf("timed out after %s", d), Code: tool.CodeTimeout}
}

// ExecuteBatch runs one round's calls concurrently and returns the results in
// model order. onResult (optional) is invoked serially, in model order when
// PreserveOrder is set and in completion order otherwise.
func (e *parallelToolExecutor) ExecuteBatch(
	runCtx *core.RunContext,
	calls []core.ToolCall,
	onResult func(core.ToolResult),
) []core.ToolResult {
	n := len(calls)
	if n == 0 {
		return nil
	}

	results := make([]core.ToolResult, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.Execute(runCtx.Context, runCtx, calls[0])
		if onResult != nil {
			onResult(results[0])
		}
		return results
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var (
		mu    sync.Mutex
		ready = make([]bool, n)
		next  int
	)

	report := func(idx int, res core.ToolResult) {
		mu.Lock()
		defer mu.Unlock()
		results[idx] = res
		ready[idx] = true
		if onResult == nil {
			return
		}
		if !e.cfg.PreserveOrder {
			onResult(res)
			return
		}
		for next < n && ready[next] {
			onResult(results[next])
			next++
		}
	}

	batchStart := time.Now()

	var g errgroup.Group
	g.SetLimit(maxPar)

	for i := range calls {
		idx, call := i, calls[i]
		g.Go(func() error {
			if err := runCtx.Context.Err(); err != nil {
				report(idx, core.ToolResult{CallID: call.ID, Name: call.Name, IsError: true, Output: errorOutput(call.Name, err)})
				return nil
			}
			report(idx, e.Execute(runCtx.Context, runCtx, call))
			return nil
		})
	}

	_ = g.Wait()

	runCtx.LogDebug(
		"flow.tools.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"preserve_order", e.cfg.PreserveOrder,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *parallelToolExecutor) truncate(s string) string {
	if e.cfg.MaxOutputTokens <= 0 || e.cfg.Truncator == nil {
		return s
	}
	return e.cfg.Truncator.Truncate(s, e.cfg.MaxOutputTokens)
}

// errorOutput renders a tool failure as text the model can read.
func errorOutput(name string, err error) string {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		switch toolErr.Code {
		case tool.CodeUnknownTool:
			return "Unknown tool: " + name
		case tool.CodeValidationError:
			return fmt.Sprintf("Invalid input for %s: %s", name, toolErr.Message)
		default:
			return fmt.Sprintf("Error executing %s: %s", name, toolErr.Message)
		}
	}
	return fmt.Sprintf("Error executing %s: %s", name, err.Error())
}

// renderOutput converts a tool result into model-readable text.
func renderOutput(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

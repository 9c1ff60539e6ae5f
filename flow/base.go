package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/logging"
	"github.com/hupe1980/docsmesh/model"
	"github.com/hupe1980/docsmesh/tool"
)

// AgentFlow is the single-agent tool loop: model call, tool dispatch, repeat,
// until the model answers without tool calls.
type AgentFlow struct {
	model      model.Model
	registry   *tool.Registry
	executor   ToolExecutor
	processors []RequestProcessor
	opts       Options
}

// New creates an AgentFlow for m with the tools in registry.
func New(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *AgentFlow {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if registry == nil {
		registry, _ = tool.NewRegistry()
	}

	processors := opts.RequestProcessors
	if len(processors) == 0 {
		processors = []RequestProcessor{
			NewInstructionsProcessor(opts.Instructions),
			NewContentsProcessor(opts.MaxHistoryMessages),
			NewToolsProcessor(registry),
		}
	}

	return &AgentFlow{
		model:      m,
		registry:   registry,
		executor:   NewParallelToolExecutor(registry, opts.Executor),
		processors: processors,
		opts:       opts,
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (f *AgentFlow) AddRequestProcessor(processor RequestProcessor) {
	f.processors = append(f.processors, processor)
}

// Execute appends the user content and launches the loop asynchronously. The
// channel is closed after exactly one terminal event, or without one when
// the run context is cancelled.
func (f *AgentFlow) Execute(runCtx *core.RunContext) (<-chan core.Event, error) {
	if f.model == nil {
		return nil, errors.New("flow has no model")
	}
	if err := runCtx.Conversation.AppendUser(runCtx.UserContent); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	eventChan := make(chan core.Event, 64)

	go func() {
		defer close(eventChan)
		r := &run{flow: f, runCtx: runCtx, out: eventChan, state: StateAwaitingModel, started: time.Now()}
		r.loop()
	}()

	return eventChan, nil
}

// run holds the mutable state of one request.
type run struct {
	flow    *AgentFlow
	runCtx  *core.RunContext
	out     chan<- core.Event
	state   State
	round   int
	started time.Time
}

func (r *run) transition(to State) {
	from := r.state
	if from == to {
		return
	}
	r.state = to
	r.runCtx.LogDebug("flow.state", "from", from.String(), "to", to.String(), "round", r.round)
	if cb := r.flow.opts.OnStateChange; cb != nil {
		cb(r.runCtx.RunID, from, to)
	}
}

// emit sends ev unless the run was cancelled.
func (r *run) emit(ev core.Event) bool {
	ev = r.runCtx.Stamp(ev, r.round)
	if r.runCtx.Err() != nil {
		return false
	}
	select {
	case <-r.runCtx.Done():
		return false
	case r.out <- ev:
		return true
	}
}

func (r *run) fail(code string, err error) {
	r.transition(StateFailed)
	r.runCtx.LogWarn("flow.run.failed", "code", code, "round", r.round, "error", err.Error())
	r.emit(core.NewErrorEvent(code, err.Error()))
	r.logOutcome("failed")
}

func (r *run) cancelled() {
	abandoned := r.runCtx.Conversation.AbandonPending("Tool call cancelled: the request was aborted before it completed.")
	r.runCtx.LogInfo("flow.run.cancelled", "round", r.round, "abandoned_calls", len(abandoned))
	r.logOutcome("cancelled")
}

func (r *run) logOutcome(outcome string) {
	logging.RecordRun(r.runCtx.Logger(), r.round, time.Since(r.started), outcome)
}

func (r *run) loop() {
	for {
		if r.runCtx.Err() != nil {
			r.cancelled()
			return
		}

		r.round++
		if err := r.runCtx.Limiter.Increment(); err != nil {
			r.fail(core.ErrorCodeLoopBound, err)
			return
		}

		r.transition(StateAwaitingModel)
		resp, err := r.callModel()
		if err != nil {
			if r.runCtx.Err() != nil {
				r.cancelled()
				return
			}
			r.fail(core.ErrorCodeModelProvider, err)
			return
		}

		r.transition(StateInterpretingResponse)
		content := normalizeAssistant(resp.Content)
		calls := content.ToolCalls()

		if len(calls) == 0 {
			if !content.IsEmpty() {
				if err := r.runCtx.Conversation.AppendAssistant(content); err != nil {
					r.fail(core.ErrorCodeInternal, err)
					return
				}
			}
			r.transition(StateDone)
			r.emit(core.NewCompleteEvent(content.Text()))
			r.logOutcome("complete")
			return
		}

		if err := r.runCtx.Conversation.AppendAssistant(content); err != nil {
			r.fail(core.ErrorCodeModelProvider, fmt.Errorf("%w: %v", core.ErrModelProvider, err))
			return
		}

		r.transition(StateDispatchingTools)
		if !r.dispatch(calls) {
			r.cancelled()
			return
		}
	}
}

// callModel performs one model call, forwarding partial text as text_chunk
// events, and returns the final response.
func (r *run) callModel() (*model.Response, error) {
	req := model.Request{Stream: r.flow.opts.Stream}
	for _, p := range r.flow.processors {
		if err := p.ProcessRequest(r.runCtx, &req); err != nil {
			return nil, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
		}
	}

	ctx := r.runCtx.Context
	if d := r.flow.opts.ModelTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	info := r.flow.model.Info()
	r.runCtx.LogDebug("flow.model.call", "model", info.Name, "provider", info.Provider, "round", r.round, "messages", len(req.Messages))

	respCh, errCh := r.flow.model.Generate(ctx, req)

	var (
		final    *model.Response
		modelErr error
		streamed strings.Builder
	)

	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				text := resp.Content.Text()
				if text == "" {
					continue
				}
				streamed.WriteString(text)
				if !r.emit(core.NewTextChunkEvent(text)) {
					return nil, r.runCtx.Err()
				}
				continue
			}
			if final == nil {
				resp := resp
				final = &resp
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && modelErr == nil {
				modelErr = err
			}
		case <-r.runCtx.Done():
			return nil, r.runCtx.Err()
		}
	}

	dur := time.Since(start)

	if modelErr == nil && final == nil && ctx.Err() != nil {
		modelErr = ctx.Err()
	}

	if modelErr != nil {
		if r.runCtx.Err() != nil {
			return nil, r.runCtx.Err()
		}
		if errors.Is(modelErr, context.DeadlineExceeded) || ctx.Err() != nil {
			modelErr = fmt.Errorf("model call timed out after %s", r.flow.opts.ModelTimeout)
		}
		logging.RecordModelCall(r.runCtx.Logger(), info.Name, 0, dur, false, modelErr)
		return nil, fmt.Errorf("%w: %v", core.ErrModelProvider, modelErr)
	}

	if final == nil {
		return nil, fmt.Errorf("%w: %v", core.ErrModelProvider, model.ErrMalformedResponse)
	}

	// Non-streaming providers deliver the text only with the final response.
	if streamed.Len() == 0 {
		if text := final.Content.Text(); text != "" {
			if !r.emit(core.NewTextChunkEvent(text)) {
				return nil, r.runCtx.Err()
			}
		}
	}

	tokens := 0
	if final.Usage != nil {
		tokens = final.Usage.TotalTokens
	}
	logging.RecordModelCall(r.runCtx.Logger(), info.Name, tokens, dur, true, nil)
	r.runCtx.LogDebug("flow.model.response", "round", r.round, "finish_reason", final.FinishReason)

	return final, nil
}

// dispatch announces and executes one round's calls and appends every result
// in model order. It returns false when the run was cancelled.
func (r *run) dispatch(calls []core.ToolCall) bool {
	for _, call := range calls {
		if !r.emit(core.NewToolCallEvent(call)) {
			return false
		}
	}

	delivered := true
	results := r.flow.executor.ExecuteBatch(r.runCtx, calls, func(res core.ToolResult) {
		if delivered && !r.emit(core.NewToolResultEvent(res)) {
			delivered = false
		}
	})

	if !delivered || r.runCtx.Err() != nil {
		return false
	}

	for _, res := range results {
		if err := r.runCtx.Conversation.AppendToolResult(res); err != nil {
			r.runCtx.LogError("flow.tool.append.error", "call_id", res.CallID, "error", err.Error())
			return false
		}
	}

	return true
}

// normalizeAssistant drops empty text parts and assigns ids to tool calls
// that arrived without one.
func normalizeAssistant(c core.Content) core.Content {
	out := core.Content{Role: core.RoleAssistant}
	for _, p := range c.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text == "" {
				continue
			}
			out.Parts = append(out.Parts, part)
		case core.ToolCallPart:
			if part.ToolCall.ID == "" {
				part.ToolCall.ID = core.NewID()
			}
			out.Parts = append(out.Parts, part)
		}
	}
	return out
}

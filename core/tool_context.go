package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/docsmesh/logging"
)

// ToolContext is the read-only surface a tool sees while it executes. Tools
// cannot touch the conversation; they only get identifiers, the working
// context and a logger.
type ToolContext struct {
	ctx      context.Context
	runCtx   *RunContext
	callID   string
	toolName string

	*loggerAdapter
}

// NewToolContext binds a tool invocation to ctx. runCtx may be nil when a tool
// is executed outside of a request (tests, CLI helpers).
func NewToolContext(ctx context.Context, runCtx *RunContext, callID, toolName string) *ToolContext {
	var logger logging.Logger
	if runCtx != nil {
		logger = runCtx.Logger()
	}
	return &ToolContext{
		ctx:           ctx,
		runCtx:        runCtx,
		callID:        callID,
		toolName:      toolName,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string {
	if tc.runCtx == nil {
		return ""
	}
	return tc.runCtx.SessionID
}

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string {
	if tc.runCtx == nil {
		return ""
	}
	return tc.runCtx.RunID
}

// CallID returns the model assigned call identifier.
func (tc *ToolContext) CallID() string { return tc.callID }

// ToolName returns the name of the executing tool.
func (tc *ToolContext) ToolName() string { return tc.toolName }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// WorkingContext returns a working context value.
func (tc *ToolContext) WorkingContext(key string) (any, bool) {
	if tc.runCtx == nil {
		return nil, false
	}
	return tc.runCtx.ContextValue(key)
}

// WorkingContextString returns a working context value rendered as string.
func (tc *ToolContext) WorkingContextString(key string) string {
	v, ok := tc.WorkingContext(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

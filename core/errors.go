package core

import "errors"

// Tool failures. They are absorbed by the tool executor and turned into
// tool result content; they never terminate a request.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidToolInput = errors.New("invalid tool input")
	ErrToolExecution    = errors.New("tool execution failed")
	ErrToolTimeout      = errors.New("tool execution timed out")
)

// Request failures. Each one ends a request with exactly one error event.
var (
	ErrModelProvider     = errors.New("model provider failure")
	ErrLoopBoundExceeded = errors.New("maximum number of rounds exceeded")
)

// Conversation invariants.
var (
	ErrPendingToolCalls    = errors.New("tool calls of the previous assistant turn are still unanswered")
	ErrUnmatchedToolResult = errors.New("tool result does not answer a pending tool call")
	ErrInvalidRole         = errors.New("invalid message role")
	ErrEmptyContent        = errors.New("message has no content")
)

// Lookup and pre-stream failures.
var (
	ErrNotFound              = errors.New("not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrMissingCredentials    = errors.New("missing credentials")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

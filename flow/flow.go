// Package flow drives the agent loop: it alternates model calls and tool
// dispatch until the model produces a final answer, emitting stream events
// along the way.
//
// A request moves through these states:
//
//	AwaitingModel -> InterpretingResponse -> DispatchingTools -> AwaitingModel ...
//	                                      \-> Done
//	any state -> Failed
//
// Request processors build the model request for every round; the tool
// executor runs one round's calls concurrently.
package flow

import (
	"time"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/model"
)

// Flow defines the interface for request execution flows.
type Flow interface {
	// Execute appends the run's user content to the conversation and starts
	// the loop. The returned channel carries every event of the request and
	// is closed when the request ends.
	Execute(runCtx *core.RunContext) (<-chan core.Event, error)
}

// State is a phase of the agent loop.
type State int

const (
	StateAwaitingModel State = iota
	StateInterpretingResponse
	StateDispatchingTools
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateInterpretingResponse:
		return "interpreting_response"
	case StateDispatchingTools:
		return "dispatching_tools"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can follow.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// RequestProcessor processes the request before it is sent to the model.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the model request before execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request) error
}

// Options configures an AgentFlow.
type Options struct {
	// Instructions is the system prompt. It may reference working context
	// values as template fields, e.g. {{ .current_repo }}.
	Instructions string
	// Stream requests partial text from the model.
	Stream bool
	// ModelTimeout bounds a single model call; 0 disables the bound.
	ModelTimeout time.Duration
	// MaxHistoryMessages trims the history sent to the model; 0 keeps all.
	MaxHistoryMessages int
	// Executor configures tool dispatch.
	Executor ExecutorConfig
	// RequestProcessors replaces the default processor chain when set.
	RequestProcessors []RequestProcessor
	// OnStateChange observes every state transition.
	OnStateChange func(runID string, from, to State)
}

// DefaultOptions returns the baseline configuration.
func DefaultOptions() Options {
	return Options{
		Stream:       true,
		ModelTimeout: 2 * time.Minute,
		Executor:     DefaultExecutorConfig(),
	}
}

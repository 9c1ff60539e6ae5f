package core

import (
	"context"

	"github.com/hupe1980/docsmesh/logging"
)

// RunContext carries the per-request execution scope handed to a flow:
//   - the ambient cancellation Context
//   - identifiers (SessionID, RunID)
//   - the new user turn to append
//   - the session's Conversation, which the flow mutates exclusively
//   - a snapshot of the working context
//   - the round limiter
type RunContext struct {
	Context          context.Context
	SessionID, RunID string
	UserContent      Content
	Conversation     *Conversation
	WorkingContext   map[string]any
	Limiter          *ModelLimiter

	*loggerAdapter
}

// NewRunContext builds a RunContext for one request. maxRounds bounds the
// number of model calls; 0 means unlimited.
func NewRunContext(
	ctx context.Context,
	sessionID, runID string,
	userContent Content,
	conv *Conversation,
	working map[string]any,
	maxRounds int,
	logger logging.Logger,
) *RunContext {
	if conv == nil {
		conv = NewConversation()
	}
	return &RunContext{
		Context:        ctx,
		SessionID:      sessionID,
		RunID:          runID,
		UserContent:    userContent,
		Conversation:   conv,
		WorkingContext: CloneMap(working),
		Limiter:        NewModelLimiter(maxRounds),
		loggerAdapter:  newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// ContextValue looks up a working context entry.
func (rc *RunContext) ContextValue(key string) (any, bool) {
	v, ok := rc.WorkingContext[key]
	return v, ok
}

// Stamp fills the run identifiers of an outgoing event.
func (rc *RunContext) Stamp(ev Event, round int) Event {
	ev.RunID = rc.RunID
	ev.SessionID = rc.SessionID
	ev.Round = round
	return ev
}

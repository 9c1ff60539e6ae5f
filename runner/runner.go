package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/flow"
	"github.com/hupe1980/docsmesh/logging"
	"github.com/hupe1980/docsmesh/session"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxRounds limits the number of model calls per request; 0 means unlimited.
	MaxRounds int
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// SessionStore resolves sessions by id.
	SessionStore core.SessionStore
	// Logger receives run lifecycle events.
	Logger logging.Logger
}

// Request is one user turn submitted to the runner.
type Request struct {
	// SessionID selects the conversation; empty starts a new session.
	SessionID string
	// Content is the user message.
	Content core.Content
	// Context is merged into the session's working context before the run.
	Context map[string]any
}

// Invocation is a started run.
type Invocation struct {
	RunID     string
	SessionID string
	// NewSession reports whether the session was created by this request.
	NewSession bool
	// Events carries every event of the run and is closed when the run ends.
	Events <-chan core.Event
}

// Runner coordinates request execution: it resolves the session, serializes
// requests per session, creates run contexts and streams events. Public
// methods are safe for concurrent use.
type Runner struct {
	flow flow.Flow

	maxRounds       int
	eventBufferSize int
	sessionStore    core.SessionStore
	logger          logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(f flow.Flow, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxRounds:       10,
		EventBufferSize: 64,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{
		flow:            f,
		maxRounds:       opts.MaxRounds,
		eventBufferSize: opts.EventBufferSize,
		sessionStore:    opts.SessionStore,
		logger:          opts.Logger,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// Sessions returns the session store used by the runner.
func (r *Runner) Sessions() core.SessionStore { return r.sessionStore }

// Run starts an asynchronous request. It blocks while another request of the
// same session is in flight. Cancelling ctx aborts the run; the event channel
// is then closed without a terminal event.
func (r *Runner) Run(ctx context.Context, req Request) (*Invocation, error) {
	sess, created, err := r.sessionStore.GetOrCreate(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	release, err := sess.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session %s: %w", sess.ID, err)
	}

	sess.UpdateContext(req.Context)

	runID := core.NewID()
	logger := logging.With(r.logger, "session_id", sess.ID, "run_id", runID)

	ctx, cancel := context.WithCancel(ctx)

	runCtx := core.NewRunContext(
		ctx,
		sess.ID,
		runID,
		req.Content,
		sess.Conversation(),
		sess.WorkingContext(),
		r.maxRounds,
		logger,
	)

	events, err := r.flow.Execute(runCtx)
	if err != nil {
		cancel()
		release()
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	logger.Info("runner.run.start", "new_session", created)

	out := make(chan core.Event, r.eventBufferSize)
	go func() {
		start := time.Now()
		delivered := 0
		outcome := "cancelled"

		defer func() {
			r.mu.Lock()
			delete(r.activeRuns, runID)
			r.mu.Unlock()
			cancel()
			release()
			close(out)
			logger.Info("runner.run.end", "events", delivered, "outcome", outcome, "duration_ms", time.Since(start).Milliseconds())
		}()

		forwarding := true
		// Drain the flow until it closes its channel so the session lock is
		// only released once the conversation is settled.
		for ev := range events {
			if ev.IsTerminal() {
				outcome = string(ev.Type)
			}
			if !forwarding {
				continue
			}
			if ctx.Err() != nil {
				forwarding = false
				continue
			}
			select {
			case out <- ev:
				delivered++
			case <-ctx.Done():
				forwarding = false
			}
		}
	}()

	return &Invocation{RunID: runID, SessionID: sess.ID, NewSession: created, Events: out}, nil
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s: %w", runID, core.ErrNotFound)
	}

	cancel()

	return nil
}

// ActiveRuns returns the number of runs in flight.
func (r *Runner) ActiveRuns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activeRuns)
}

// ErrRunFailed wraps the message of a terminal error event.
var ErrRunFailed = errors.New("run failed")

// Result is the collected outcome of a synchronous request.
type Result struct {
	RunID     string
	SessionID string
	Answer    string
	Events    []core.Event
}

// Invoke runs a request to completion and returns the final answer. A
// terminal error event is returned as an error wrapping ErrRunFailed.
func (r *Runner) Invoke(ctx context.Context, req Request) (*Result, error) {
	inv, err := r.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: inv.RunID, SessionID: inv.SessionID}
	var (
		failure error
		done    bool
	)
	for ev := range inv.Events {
		res.Events = append(res.Events, ev)
		switch ev.Type {
		case core.EventComplete:
			res.Answer = ev.Content
			done = true
		case core.EventError:
			failure = fmt.Errorf("%w: %s: %s", ErrRunFailed, ev.ErrorCode, ev.Content)
			done = true
		}
	}

	if failure != nil {
		return res, failure
	}
	if !done {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		return res, fmt.Errorf("%w: stream ended without a terminal event", ErrRunFailed)
	}
	return res, nil
}

// Package docsmesh assembles the documentation assistant: a tool-calling
// agent loop over a documentation store, per-session conversation history and
// a streaming event interface. Most applications:
//  1. Open a docs.Store (SQLite in production, in-memory for tests)
//  2. Create an Assistant via New with a model and optional extra tools
//  3. Call Run for a stream of events, Ask for the final answer, or mount
//     Handler to serve the SSE gateway
//
// The packages underneath (flow, runner, session, gateway) can be composed
// directly when finer control is needed.
package docsmesh

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/docs"
	"github.com/hupe1980/docsmesh/flow"
	"github.com/hupe1980/docsmesh/gateway"
	"github.com/hupe1980/docsmesh/logging"
	"github.com/hupe1980/docsmesh/model"
	"github.com/hupe1980/docsmesh/runner"
	"github.com/hupe1980/docsmesh/session"
	"github.com/hupe1980/docsmesh/tool"
)

// DefaultInstructions frames the documentation assistant. Working context
// values are available as template fields.
const DefaultInstructions = `You are a documentation expert. Answer questions using the documentation pages available through your tools and, where it helps, Stack Overflow discussions.

Always list the documentation pages first, then read the pages most relevant to the question before answering. Be honest when the documentation does not cover something.
{{if .current_repo}}
The user is working in the GitHub repository {{.current_repo}}.{{end}}`

// Options configures an Assistant.
type Options struct {
	// Instructions is the system prompt template.
	Instructions string
	// Tools are registered next to the documentation tools.
	Tools []tool.Tool
	// MaxRounds limits model calls per request; 0 means unlimited.
	MaxRounds int
	// SessionStore defaults to an in-memory store with TTL eviction.
	SessionStore core.SessionStore
	// Flow tunes the agent loop (timeouts, executor, history window).
	Flow func(o *flow.Options)
	Logger logging.Logger
}

// Assistant is the assembled agent.
type Assistant struct {
	registry *tool.Registry
	runner   *runner.Runner
	logger   logging.Logger
}

// New wires the documentation tools of store and opts.Tools into an agent
// loop driven by m.
func New(m model.Model, store docs.Store, optFns ...func(o *Options)) (*Assistant, error) {
	opts := Options{
		Instructions: DefaultInstructions,
		MaxRounds:    10,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore(func(o *session.Options) { o.Logger = opts.Logger })
	}

	registry, err := tool.NewRegistry(append(docs.Tools(store), opts.Tools...)...)
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	registry.Seal()

	f := flow.New(m, registry, func(o *flow.Options) {
		o.Instructions = opts.Instructions
		if opts.Flow != nil {
			opts.Flow(o)
		}
	})

	r := runner.New(f, func(o *runner.Options) {
		o.MaxRounds = opts.MaxRounds
		o.SessionStore = opts.SessionStore
		o.Logger = opts.Logger
	})

	return &Assistant{registry: registry, runner: r, logger: opts.Logger}, nil
}

// Run starts a request and returns its event stream.
func (a *Assistant) Run(ctx context.Context, req runner.Request) (*runner.Invocation, error) {
	return a.runner.Run(ctx, req)
}

// Ask sends question on sessionID (empty for a new session) and waits for
// the final answer.
func (a *Assistant) Ask(ctx context.Context, sessionID, question string) (*runner.Result, error) {
	return a.runner.Invoke(ctx, runner.Request{
		SessionID: sessionID,
		Content:   core.NewTextContent(core.RoleUser, question),
	})
}

// Runner exposes the underlying runner.
func (a *Assistant) Runner() *runner.Runner { return a.runner }

// ToolNames lists the registered tools in name order.
func (a *Assistant) ToolNames() []string { return a.registry.Names() }

// Handler returns the SSE gateway for this assistant.
func (a *Assistant) Handler(optFns ...func(o *gateway.Options)) http.Handler {
	return gateway.NewServer(a.runner, append([]func(o *gateway.Options){func(o *gateway.Options) {
		o.Logger = a.logger
	}}, optFns...)...)
}

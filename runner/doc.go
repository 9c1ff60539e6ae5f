// Package runner implements the orchestration layer between transports and
// the agent loop.
//
// The Runner resolves the session of a request, serializes requests against
// the same session, builds the core.RunContext (run id, working context,
// round limiter, scoped logger) and forwards the flow's events to the caller.
//
// # Responsibilities
//   - Session resolution and per-session serialization
//   - Run lifecycle management & cancellation
//   - Event forwarding with backpressure
//   - A synchronous helper (Invoke) for the CLI and examples
package runner

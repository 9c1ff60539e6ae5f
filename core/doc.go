// Package core provides the foundational domain types and execution contexts
// shared by every other docsmesh package:
//
//   - Content / Part (role-based messages with text, data, tool call and tool result parts)
//   - Conversation (the ordered, append-only message history of a session)
//   - Session (a client-scoped conversation container with a run lock)
//   - Event (the tagged stream records emitted while a request is processed)
//   - RunContext / ToolContext (scoped execution state for the loop and tools)
//
// The package keeps implementation concerns (model providers, tool backends,
// transports) out of scope and exposes small interfaces so they can be swapped.
package core

// Package model defines the provider-agnostic abstractions for talking to
// language models inside docsmesh.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool declarations (ToolDefinition) and tool calls (core.ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic tests (ScriptedModel)
//
// Providers (model/anthropic, model/openai) implement Model so the agent loop
// stays decoupled from vendor SDKs.
package model

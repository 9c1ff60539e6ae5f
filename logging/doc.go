// Package logging provides a minimal logging interface and adapters for docsmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the agent loop, the tool executor and the gateway use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - StructuredLogger, a slog backed logger with contextual helpers
//   - SlogAdapter wrapping an existing *slog.Logger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(flow, store, func(o *runner.Options) { o.Logger = logger })
//
// Messages are dotted event names ("tool.call.end") followed by key/value pairs.
package logging

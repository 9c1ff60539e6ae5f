package core

import (
	"context"
	"sync"
)

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }

func newRunContextForTest(logger *recordingLogger) *RunContext {
	return NewRunContext(
		context.Background(),
		"sess-1", "run-1",
		NewTextContent(RoleUser, "hello"),
		NewConversation(),
		map[string]any{"current_repo": "octo/hello", "current_files": []any{"main.go"}},
		3,
		logger,
	)
}

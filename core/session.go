package core

import (
	"context"
	"sync"
	"time"
)

// Session is the server-side record of one conversation thread. It owns the
// Conversation history, the client supplied working context and a run lock
// that serializes requests against the same session.
type Session struct {
	ID       string            `json:"id"`
	Created  time.Time         `json:"created"`
	Metadata map[string]string `json:"metadata"`

	mu           sync.RWMutex
	updated      time.Time
	conversation *Conversation
	working      map[string]any
	runLock      chan struct{}
	now          func() time.Time
}

// NewSession creates a new session with the given ID.
func NewSession(id string) *Session {
	return NewSessionWithClock(id, time.Now)
}

// NewSessionWithClock creates a session whose activity timestamps come from
// clock.
func NewSessionWithClock(id string, clock func() time.Time) *Session {
	if clock == nil {
		clock = time.Now
	}
	now := clock()
	return &Session{
		ID:           id,
		Created:      now,
		Metadata:     map[string]string{},
		updated:      now,
		conversation: NewConversation(),
		working:      map[string]any{},
		runLock:      make(chan struct{}, 1),
		now:          clock,
	}
}

// Conversation returns the session's message history.
func (s *Session) Conversation() *Conversation { return s.conversation }

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.updated = s.now()
	s.mu.Unlock()
}

// LastActive returns the time of the last recorded activity.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Acquire takes the session's run lock, blocking until it is free or ctx is
// done. The returned func releases the lock and must be called exactly once.
func (s *Session) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.runLock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.Touch()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.Touch()
			<-s.runLock
		})
	}, nil
}

// Busy reports whether a request currently holds the run lock.
func (s *Session) Busy() bool { return len(s.runLock) > 0 }

// UpdateContext merges working context values supplied with a request
// (e.g. current_repo, current_files). Nil values remove keys.
func (s *Session) UpdateContext(values map[string]any) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		if v == nil {
			delete(s.working, k)
			continue
		}
		s.working[k] = cloneValue(v)
	}
	s.updated = s.now()
}

// WorkingContext returns a copy of the working context.
func (s *Session) WorkingContext() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneMap(s.working)
}

// SessionStore owns the set of live sessions.
type SessionStore interface {
	// GetOrCreate returns the session for id, creating it when absent. An
	// empty id always creates a session with a fresh identifier.
	GetOrCreate(id string) (*Session, bool, error)
	Get(id string) (*Session, error)
	Delete(id string) error
}

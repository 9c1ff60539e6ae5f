package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/docsmesh/core"
	"github.com/hupe1980/docsmesh/logging"
)

// Options configure an InMemoryStore.
type Options struct {
	// TTL evicts sessions idle for longer than this; 0 keeps sessions forever.
	TTL time.Duration
	// SweepInterval is the period of the background sweeper.
	SweepInterval time.Duration
	// Logger receives eviction events.
	Logger logging.Logger
	// Now overrides the clock.
	Now func() time.Time
}

// InMemoryStore is a volatile SessionStore implementation storing sessions in
// a process local map. It is safe for concurrent access. Sessions idle for
// longer than TTL are evicted by Sweep; a session holding its run lock is
// never evicted.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	opts     Options
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		TTL:           time.Hour,
		SweepInterval: time.Minute,
		Logger:        logging.NoOpLogger{},
		Now:           time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &InMemoryStore{sessions: make(map[string]*core.Session), opts: opts}
}

// GetOrCreate returns the live session for sessionID, creating it lazily. An
// empty id always yields a new session with a generated identifier. The bool
// reports whether the session was created.
func (s *InMemoryStore) GetOrCreate(sessionID string) (*core.Session, bool, error) {
	if sessionID == "" {
		sessionID = core.NewID()
	}

	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok && !s.expired(sess) {
		sess.Touch()
		return sess, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		if !s.expired(sess) {
			sess.Touch()
			return sess, false, nil
		}
		s.evictLocked(sess, "expired")
	}
	return s.createSessionLocked(sessionID), true, nil
}

// Get returns an existing live session or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *InMemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len returns the number of stored sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts every expired idle session and returns how many were removed.
func (s *InMemoryStore) Sweep() int {
	if s.opts.TTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if s.expired(sess) {
			s.evictLocked(sess, "ttl")
			n++
		}
	}
	return n
}

// StartSweeper runs Sweep every SweepInterval until ctx is done.
func (s *InMemoryStore) StartSweeper(ctx context.Context) {
	if s.opts.TTL <= 0 || s.opts.SweepInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.opts.Logger.Debug("session.sweep", "evicted", n)
				}
			}
		}
	}()
}

func (s *InMemoryStore) expired(sess *core.Session) bool {
	if s.opts.TTL <= 0 || sess.Busy() {
		return false
	}
	return s.opts.Now().Sub(sess.LastActive()) > s.opts.TTL
}

// evictLocked removes sess; caller must hold the write lock.
func (s *InMemoryStore) evictLocked(sess *core.Session, reason string) {
	delete(s.sessions, sess.ID)
	s.opts.Logger.Info("session.evicted", "session_id", sess.ID, "reason", reason,
		"idle_ms", s.opts.Now().Sub(sess.LastActive()).Milliseconds(), "messages", sess.Conversation().Len())
}

// createSessionLocked allocates and stores a new session; caller must already
// hold the write lock.
func (s *InMemoryStore) createSessionLocked(sessionID string) *core.Session {
	sess := core.NewSessionWithClock(sessionID, s.opts.Now)
	s.sessions[sessionID] = sess
	return sess
}

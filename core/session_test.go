package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSession_WorkingContext(t *testing.T) {
	s := NewSession("s1")
	s.UpdateContext(map[string]any{"current_repo": "octo/hello", "current_files": []any{"a.go"}})

	wc := s.WorkingContext()
	if wc["current_repo"] != "octo/hello" {
		t.Fatalf("unexpected working context: %+v", wc)
	}
	wc["current_files"].([]any)[0] = "changed"
	if s.WorkingContext()["current_files"].([]any)[0] != "a.go" {
		t.Error("working context copy leaked")
	}

	s.UpdateContext(map[string]any{"current_repo": nil})
	if _, ok := s.WorkingContext()["current_repo"]; ok {
		t.Error("nil value should remove the key")
	}
}

func TestSession_AcquireSerializes(t *testing.T) {
	s := NewSession("s1")
	release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !s.Busy() {
		t.Fatal("session should be busy")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second acquire should wait for the lock, got %v", err)
	}

	release()
	release() // idempotent
	if s.Busy() {
		t.Fatal("lock should be released")
	}
	release2, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	release2()
}

func TestSession_Touch(t *testing.T) {
	s := NewSession("s1")
	before := s.LastActive()
	time.Sleep(2 * time.Millisecond)
	s.Touch()
	if !s.LastActive().After(before) {
		t.Error("Touch should advance LastActive")
	}
	if s.Conversation() == nil {
		t.Error("session must own a conversation")
	}
}

func TestSession_ClockStampsActivity(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSessionWithClock("s1", func() time.Time { return now })
	if !s.Created.Equal(now) || !s.LastActive().Equal(now) {
		t.Fatalf("unexpected timestamps: created=%v last=%v", s.Created, s.LastActive())
	}

	now = now.Add(time.Minute)
	release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	release()
	if !s.LastActive().Equal(now) {
		t.Errorf("expected activity at %v, got %v", now, s.LastActive())
	}

	now = now.Add(time.Minute)
	s.UpdateContext(map[string]any{"current_repo": "octo/hello"})
	if !s.LastActive().Equal(now) {
		t.Errorf("expected activity at %v, got %v", now, s.LastActive())
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hupe1980/docsmesh/core"
)

const defaultHeartbeat = 15 * time.Second

// Stream writes core.Events to an HTTP client as server-sent events. Every
// record is a single "data: <json>" line followed by a blank line and is
// flushed immediately. While idle, ": ping" comments keep proxies from
// closing the connection.
type Stream struct {
	w         io.Writer
	flush     func()
	heartbeat time.Duration
	mu        sync.Mutex
}

// NewStream prepares w for event streaming.
func NewStream(w http.ResponseWriter) *Stream {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")

	var flushFn func()
	if f, ok := w.(http.Flusher); ok {
		flushFn = f.Flush
	}

	return &Stream{
		w:         w,
		flush:     flushFn,
		heartbeat: defaultHeartbeat,
	}
}

// NewStreamWriter streams to a plain writer (e.g. in tests).
func NewStreamWriter(w io.Writer) *Stream {
	return &Stream{w: w}
}

// SetHeartbeat adjusts the heartbeat interval; <= 0 disables it.
func (s *Stream) SetHeartbeat(d time.Duration) {
	if d <= 0 {
		s.heartbeat = 0
		return
	}
	s.heartbeat = d
}

// StreamEvents copies events to the client until the terminal event was
// written, the channel closes, ctx is done or a write fails. It returns the
// number of events written.
func (s *Stream) StreamEvents(ctx context.Context, events <-chan core.Event) (int, error) {
	if s == nil {
		return 0, errors.New("gateway: stream is nil")
	}
	var ticker *time.Ticker
	if s.heartbeat > 0 {
		ticker = time.NewTicker(s.heartbeat)
		defer ticker.Stop()
	}

	sent := 0
	for {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return sent, nil
			}
			// select picks randomly among ready cases; a done ctx must win.
			if err := ctx.Err(); err != nil {
				return sent, err
			}
			if err := s.Send(ev); err != nil {
				return sent, err
			}
			sent++
			if ev.IsTerminal() {
				return sent, nil
			}
		case <-heartbeatChan(ticker):
			if err := s.sendHeartbeat(); err != nil {
				return sent, err
			}
		}
	}
}

// Send writes a single event record.
func (s *Stream) Send(ev core.Event) error {
	if s == nil {
		return errors.New("gateway: stream is nil")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("gateway: marshal SSE payload: %w", err)
	}
	frame := make([]byte, 0, len(body)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, body...)
	frame = append(frame, "\n\n"...)
	return s.write(frame)
}

func (s *Stream) sendHeartbeat() error {
	if s == nil || s.w == nil || s.heartbeat <= 0 {
		return nil
	}
	return s.write([]byte(": ping\n\n"))
}

func (s *Stream) write(data []byte) error {
	if s == nil || s.w == nil {
		return errors.New("gateway: stream writer not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

func heartbeatChan(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

package gateway

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docsmesh/core"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

func TestStream_StopsAfterTerminalEvent(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamWriter(&buf)

	events := make(chan core.Event, 4)
	events <- core.NewTextChunkEvent("Hel")
	events <- core.NewTextChunkEvent("lo")
	events <- core.NewCompleteEvent("Hello")
	events <- core.NewTextChunkEvent("late")

	sent, err := s.StreamEvents(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	records := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	require.Len(t, records, 3)
	for _, r := range records {
		assert.True(t, strings.HasPrefix(r, "data: {"), r)
	}
	assert.Contains(t, records[2], `"type":"complete"`)
	assert.NotContains(t, buf.String(), "late")
}

func TestStream_Heartbeat(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamWriter(&buf)
	s.SetHeartbeat(5 * time.Millisecond)

	events := make(chan core.Event)
	go func() {
		time.Sleep(40 * time.Millisecond)
		events <- core.NewErrorEvent(core.ErrorCodeInternal, "stop")
	}()

	_, err := s.StreamEvents(context.Background(), events)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), ": ping\n\n")
	assert.True(t, strings.HasSuffix(buf.String(), "\n\n"))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStream_WriteFailure(t *testing.T) {
	s := NewStreamWriter(failingWriter{})
	events := make(chan core.Event, 1)
	events <- core.NewTextChunkEvent("x")

	sent, err := s.StreamEvents(context.Background(), events)
	assert.EqualError(t, err, "broken pipe")
	assert.Zero(t, sent)
}

func TestStream_ContextDone(t *testing.T) {
	s := NewStreamWriter(&bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.StreamEvents(ctx, make(chan core.Event))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_CancelledContextWinsOverBufferedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 200; i++ {
		var buf bytes.Buffer
		events := make(chan core.Event, 2)
		events <- core.NewTextChunkEvent("a")
		events <- core.NewTextChunkEvent("b")

		sent, err := NewStreamWriter(&buf).StreamEvents(ctx, events)
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, sent, "iteration %d", i)
		require.Zero(t, buf.Len(), "iteration %d", i)
	}
}

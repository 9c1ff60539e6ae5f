package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/docsmesh/core"
)

// DefaultCollectTimeout bounds Collect.
const DefaultCollectTimeout = 5 * time.Second

// Collect drains ch until it is closed. The test fails if that takes longer
// than DefaultCollectTimeout.
func Collect(t testing.TB, ch <-chan core.Event) Events {
	t.Helper()
	return CollectWithin(t, ch, DefaultCollectTimeout)
}

// CollectWithin drains ch until it is closed or d elapses.
func CollectWithin(t testing.TB, ch <-chan core.Event, d time.Duration) Events {
	t.Helper()
	var out Events
	deadline := time.After(d)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("event stream not closed after %s (%d events received)", d, len(out))
			return out
		}
	}
}

// Events is a recorded event stream.
type Events []core.Event

// Types returns the event types in order.
func (es Events) Types() []core.EventType {
	out := make([]core.EventType, len(es))
	for i, e := range es {
		out[i] = e.Type
	}
	return out
}

// OfType returns the events of type typ.
func (es Events) OfType(typ core.EventType) Events {
	var out Events
	for _, e := range es {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Text concatenates the text_chunk contents.
func (es Events) Text() string {
	var sb strings.Builder
	for _, e := range es {
		if e.Type == core.EventTextChunk {
			sb.WriteString(e.Content)
		}
	}
	return sb.String()
}

// Terminal returns the last event if it is terminal.
func (es Events) Terminal() (core.Event, bool) {
	if len(es) == 0 || !es[len(es)-1].IsTerminal() {
		return core.Event{}, false
	}
	return es[len(es)-1], true
}

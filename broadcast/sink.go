package broadcast

import (
	"context"
	"sync"

	"stream-chat/domain/event"
)

// BufferedSink bridges the broadcaster to one connection's writer
// goroutine through a bounded channel. A full buffer drops the event
// rather than stalling the room; a closed sink swallows everything.
type BufferedSink struct {
	mu     sync.Mutex
	closed bool
	events chan event.Event
}

func NewBufferedSink(bufferSize int) *BufferedSink {
	return &BufferedSink{events: make(chan event.Event, bufferSize)}
}

// Consume is called by the broadcaster. It hands the event to the owner
// of the channel; the transport writer takes it from there.
func (s *BufferedSink) Consume(ctx context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Backpressure: the connection is too slow, the event is lost.
		return nil
	}
}

// Events is drained by the connection's writer goroutine. The channel is
// closed by Close, which ends the writer.
func (s *BufferedSink) Events() <-chan event.Event {
	return s.events
}

// Close makes every later Consume a no-op. Safe to call twice.
func (s *BufferedSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

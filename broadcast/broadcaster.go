// Package broadcast fans events out to every connection subscribed to a
// room's channel. Delivery is best-effort with no ordering guarantee
// across connections; this is an in-process relay, not a message broker.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"stream-chat/contract"
	"stream-chat/domain/event"
)

// Broadcaster manages per-room subscriber sets. Channel membership is
// independent of presence membership; the session controller keeps the
// two in lockstep.
type Broadcaster struct {
	mu          sync.RWMutex
	log         *slog.Logger
	channels    map[string]map[contract.EventSink]struct{}
	sinkTimeout time.Duration
}

func NewBroadcaster(log *slog.Logger, sinkTimeout time.Duration) *Broadcaster {
	return &Broadcaster{
		log:         log,
		channels:    make(map[string]map[contract.EventSink]struct{}),
		sinkTimeout: sinkTimeout,
	}
}

// Subscribe adds the sink to the room's channel, creating it on the fly.
func (b *Broadcaster) Subscribe(sink contract.EventSink, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.channels[roomID]; !ok {
		b.channels[roomID] = make(map[contract.EventSink]struct{})
	}
	b.channels[roomID][sink] = struct{}{}
}

// Unsubscribe removes the sink from the room's channel. No empty sets are
// left behind, to avoid leaking room entries over time.
func (b *Broadcaster) Unsubscribe(sink contract.EventSink, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sinks, ok := b.channels[roomID]
	if !ok {
		return
	}
	delete(sinks, sink)
	if len(sinks) == 0 {
		delete(b.channels, roomID)
	}
}

// Broadcast delivers e to every sink currently subscribed to the room.
// The subscriber set is snapshotted under the read lock so a slow sink
// never blocks concurrent subscribes. Each delivery is bounded by the
// sink timeout; a failed delivery is logged and dropped, never retried.
func (b *Broadcaster) Broadcast(ctx context.Context, roomID string, e event.Event) {
	b.mu.RLock()
	sinks := make([]contract.EventSink, 0, len(b.channels[roomID]))
	for sink := range b.channels[roomID] {
		sinks = append(sinks, sink)
	}
	b.mu.RUnlock()

	for _, sink := range sinks {
		deliveryCtx, cancel := context.WithTimeout(ctx, b.sinkTimeout)
		if err := sink.Consume(deliveryCtx, e); err != nil {
			b.log.Warn("Event delivery failed", "room", roomID, "event", e.Name(), "err", err)
		}
		cancel()
	}
}

// Subscribers reports the current channel size, for telemetry.
func (b *Broadcaster) Subscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[roomID])
}

// Package progress implements the correlation-id-keyed notification channel
// between the pipeline and connected clients. Delivery is best-effort and
// transport-agnostic: the pipeline only ever publishes, and events without a
// live subscriber are dropped silently.
package progress

import (
	"sync"

	"github.com/ytdlder/ytdlder/internal/metrics"
)

// Event is a single progress notification. Terminal events carry either the
// published result or an error message.
type Event struct {
	Message  string `json:"message"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
	Final    bool   `json:"final,omitempty"`
}

// subscriberBuffer bounds the per-subscriber channel. A draining subscriber
// never hits the bound; a stalled one loses events rather than blocking the
// pipeline.
const subscriberBuffer = 16

// Hub routes events to at most one subscriber per correlation id.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Event)}
}

// Subscribe registers the subscriber for id and returns its event channel.
// A second registration for the same id replaces the first: the old channel
// is closed so its consumer unblocks.
func (h *Hub) Subscribe(id string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if old, ok := h.subs[id]; ok {
		close(old)
	}
	h.subs[id] = ch
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes the subscription for id if ch is still the registered
// channel, and closes it. A stale ch (already replaced) is ignored.
func (h *Hub) Unsubscribe(id string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, ok := h.subs[id]
	if !ok || (<-chan Event)(cur) != ch {
		return
	}
	delete(h.subs, id)
	close(cur)
}

// Publish delivers ev to the subscriber for id, if any. It never blocks:
// without a subscriber, or with a full subscriber buffer, the event is
// dropped and counted.
func (h *Hub) Publish(id string, ev Event) {
	// The send stays under the read lock so a concurrent replacement cannot
	// close the channel mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.subs[id]
	if !ok {
		metrics.ProgressDroppedTotal.Inc()
		return
	}
	select {
	case ch <- ev:
	default:
		metrics.ProgressDroppedTotal.Inc()
	}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

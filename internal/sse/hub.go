// Package sse fans verdict events out to live subscribers.
package sse

import (
	"log/slog"
	"sync"
)

// TopicVerdicts carries one event per prediction.
const TopicVerdicts = "verdicts"

// Event represents a server-sent event to be published to subscribers.
type Event struct {
	Type string // "verdict", "stats"
	Data []byte // JSON payload
}

// Hub is a topic fan-out hub. Subscribers receive events published to the
// topics they subscribed to until they cancel or the hub is closed.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	closed      bool
	logger      *slog.Logger
}

// NewHub creates a new hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a new subscriber for the topic. The returned cancel
// function must be called when the subscriber disconnects and may be called
// more than once. After Close the channel is returned already closed.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subscribers[topic] == nil {
		h.subscribers[topic] = make(map[chan Event]struct{})
	}
	h.subscribers[topic][ch] = struct{}{}
	return ch, func() { h.unsubscribe(topic, ch) }
}

func (h *Hub) unsubscribe(topic string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[topic]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(h.subscribers, topic)
	}
	close(ch)
}

// Close closes every subscriber channel so long-lived stream handlers return.
// Later subscriptions receive a closed channel and publishes are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(h.subscribers, topic)
	}
}

// Publish sends an event to all subscribers of the topic. A full subscriber
// channel drops the event.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[topic] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("sse: dropped event for slow client", "topic", topic)
		}
	}
}

// SubscriberCount returns the number of active subscribers for the topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}

package events

import (
	"context"
	"sync"
)

// Hub is the in-process Publisher. Subscribers receive events on buffered
// channels; a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	buffer int
}

// NewHub creates a Hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(_ context.Context, topic string, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers one channel for all the given topics. cancel removes
// the subscription and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(topics ...string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	for _, topic := range topics {
		if _, ok := h.subs[topic]; !ok {
			h.subs[topic] = make(map[chan Event]struct{})
		}
		h.subs[topic][ch] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			for _, topic := range topics {
				if set, ok := h.subs[topic]; ok {
					delete(set, ch)
					if len(set) == 0 {
						delete(h.subs, topic)
					}
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

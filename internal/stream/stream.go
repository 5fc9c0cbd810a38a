package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives broadcast payloads on C. Messages are dropped
// rather than queued without bound when the subscriber falls behind;
// Lagged reports how many were dropped since the last call.
type Subscriber struct {
	C       chan string
	dropped atomic.Uint64
}

// Lagged returns the number of payloads dropped since the previous
// call and resets the counter. Consumers surface a non-zero value as a
// recoverable gap marker.
func (s *Subscriber) Lagged() uint64 {
	return s.dropped.Swap(0)
}

// Hub fans one payload out to any number of subscribers. A slow or
// absent subscriber never blocks the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	buffer      int
}

// NewHub creates a Hub whose subscribers buffer up to size payloads.
func NewHub(size int) *Hub {
	if size <= 0 {
		size = 100
	}

	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		buffer:      size,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{C: make(chan string, h.buffer)}
	h.subscribers[sub] = struct{}{}

	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.C)
	}
}

// Broadcast delivers payload to every subscriber. Subscribers whose
// buffer is full miss the payload and have their lag counter bumped.
func (h *Hub) Broadcast(payload string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub.C <- payload:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Len returns the current subscriber count.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

package fanout

import (
	"log"
	"sync"
)

const defaultSubscriberBuffer = 64

// Subscription is a live interest in one session's events. Events arrive on
// C in the order they were dispatched; the channel is closed on unsubscribe
// or when the subscriber falls too far behind.
type Subscription struct {
	SessionID     string
	ParticipantID string
	C             <-chan Event

	hub    *Hub
	send   chan Event
	closed bool
	mu     sync.Mutex
}

// Hub is the in-process subscriber table. Dispatch is expected to be called
// from a single goroutine (the broker relay), which keeps per-subscriber
// delivery order aligned with queue order.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Subscription]struct{}
	buffer   int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		sessions: make(map[string]map[*Subscription]struct{}),
		buffer:   buffer,
	}
}

// Subscribe registers interest in a session. The caller must Unsubscribe
// when done; dropping the handle leaks the subscriber slot until eviction.
func (h *Hub) Subscribe(sessionID, participantID string) *Subscription {
	send := make(chan Event, h.buffer)
	sub := &Subscription{
		SessionID:     sessionID,
		ParticipantID: participantID,
		C:             send,
		hub:           h,
		send:          send,
	}

	h.mu.Lock()
	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.sessions[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Unsubscribe releases the subscription. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	sub.mu.Unlock()

	h.mu.Lock()
	if set, ok := h.sessions[sub.SessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.sessions, sub.SessionID)
		}
	}
	h.mu.Unlock()

	close(sub.send)
}

// Dispatch delivers an event to every current subscriber of its session.
// A subscriber whose buffer is full is evicted rather than blocking the
// relay; such clients recover by re-listing on reconnect.
func (h *Hub) Dispatch(event Event) {
	h.mu.RLock()
	set := h.sessions[event.SessionID]
	subs := make([]*Subscription, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			continue
		}
		select {
		case sub.send <- event:
			sub.mu.Unlock()
		default:
			sub.mu.Unlock()
			log.Printf("fanout: evicting slow subscriber for session %s", event.SessionID)
			h.Unsubscribe(sub)
		}
	}
}

// SubscriberCount reports the live subscriber count for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Package events broadcasts redemption outcomes to connected operator
// sockets. Delivery is best-effort: slow subscribers are dropped rather
// than allowed to back-pressure the dispatch pipeline.
package events

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

// Event is one redemption outcome as seen on the live feed.
type Event struct {
	Token     string           `json:"token"`
	GraphType string           `json:"graph_type"`
	Handler   string           `json:"handler"`
	UserID    string           `json:"user_id"`
	Outcome   callback.Outcome `json:"outcome"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

const subscriberBuffer = 16

// Hub fans events out to subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish sends the event to every subscriber without blocking.
// Subscribers whose buffers are full miss the event.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// must be called to release it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.Subscribe()
	defer cancel()

	// Reads are discarded; their failure is the disconnect signal.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

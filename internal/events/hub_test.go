package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

func TestPublishReachesSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(Event{Token: "cb::orders::x", Outcome: callback.OutcomeSuccess})

	select {
	case ev := <-ch:
		if ev.Token != "cb::orders::x" {
			t.Errorf("token = %q, want %q", ev.Token, "cb::orders::x")
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not filled in")
		}
	default:
		t.Fatal("subscriber received nothing")
	}
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	// Overfill the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(Event{Token: "cb::orders::x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered events = %d, want %d", got, subscriberBuffer)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	cancel()

	hub.Publish(Event{Token: "cb::orders::x"})
	if len(ch) != 0 {
		t.Error("canceled subscriber still received an event")
	}
}

func TestNilHubPublishIsSafe(t *testing.T) {
	var hub *Hub
	hub.Publish(Event{Token: "cb::orders::x"})
}

func TestServeWS(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	// The subscription is registered during the upgrade handshake;
	// poll until the event lands.
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)

	go func() {
		for time.Now().Before(deadline) {
			hub.Publish(Event{Token: "cb::orders::x", Outcome: callback.OutcomeSuccess})
			time.Sleep(10 * time.Millisecond)
		}
	}()

	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if ev.Token != "cb::orders::x" {
		t.Errorf("token = %q, want %q", ev.Token, "cb::orders::x")
	}
	if ev.Outcome != callback.OutcomeSuccess {
		t.Errorf("outcome = %q, want %q", ev.Outcome, callback.OutcomeSuccess)
	}
}

package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHub_BroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.Broadcast(Event{Type: EventMarketStatus, Status: "open", UsersScored: 3})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != EventMarketStatus || ev.Status != "open" || ev.UsersScored != 3 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Time.IsZero() {
		t.Error("expected event time to be stamped")
	}
}

func TestHub_NilBroadcastIsNoop(t *testing.T) {
	var h *Hub
	h.Broadcast(Event{Type: EventPlayerStats})
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New()
	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

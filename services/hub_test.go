package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gameqc/lifecycle"
)

func dialConsole(t *testing.T, hub *Hub, gameID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.RegisterClient(conn, "reviewer", gameID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial console: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count: want=%d got=%d", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversTransitionsPerGame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil)
	go hub.Run(ctx)

	watcher := dialConsole(t, hub, "g1")
	other := dialConsole(t, hub, "g2")
	waitForClients(t, hub, 2)

	err := hub.Notify(ctx, lifecycle.TransitionEvent{
		VersionID: "v1",
		GameID:    "g1",
		Action:    lifecycle.ActionPass,
		From:      lifecycle.StatusQCProcessing,
		To:        lifecycle.StatusQCPassed,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	_ = watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string                    `json:"type"`
		Payload lifecycle.TransitionEvent `json:"payload"`
	}
	if err := watcher.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "version_transition" || msg.Payload.To != lifecycle.StatusQCPassed {
		t.Fatalf("message: got %+v", msg)
	}

	if sent := hub.BroadcastToGame("g3", "noop", nil); sent != 0 {
		t.Fatalf("broadcast to unwatched game: want=0 got=%d", sent)
	}
	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatalf("client filtered to g2 must not receive g1 events")
	}
}

func TestHubAnswersPing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil)
	go hub.Run(ctx)

	conn := dialConsole(t, hub, "")
	waitForClients(t, hub, 1)
	if err := conn.WriteJSON(Message{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "pong" {
		t.Fatalf("reply: want=pong got=%s", msg.Type)
	}
}

func TestHubStopDropsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()

	dialConsole(t, hub, "")
	waitForClients(t, hub, 1)
	cancel()
	<-stopped
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("clients after stop: want=0 got=%d", got)
	}
}

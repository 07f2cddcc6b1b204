package display

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/glydways/clyde/internal/ride"
)

func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestServer_BroadcastsLayout(t *testing.T) {
	t.Parallel()

	s := NewServer(nil)
	conn := dialTestServer(t, s)

	if !s.WaitForClient(context.Background(), 2*time.Second) {
		t.Fatal("client never registered")
	}

	s.Speaking(context.Background(), "Doors closing")

	msg := readMessage(t, conn)
	if msg.Layout != "speaking" {
		t.Errorf("expected speaking layout, got %q", msg.Layout)
	}
	data, _ := msg.Data.(map[string]any)
	if data["text"] != "Doors closing" {
		t.Errorf("unexpected payload: %v", msg.Data)
	}
}

func TestServer_IdleLayoutCarriesProgress(t *testing.T) {
	t.Parallel()

	s := NewServer(nil)
	conn := dialTestServer(t, s)
	if !s.WaitForClient(context.Background(), 2*time.Second) {
		t.Fatal("client never registered")
	}

	s.Idle(context.Background(), ride.Context{
		RouteName:           "Downtown Loop",
		NextStop:            "Civic Center",
		ETASeconds:          180,
		RideDurationSeconds: 900,
		ElapsedSeconds:      450,
	})

	msg := readMessage(t, conn)
	if msg.Layout != "idle" {
		t.Fatalf("expected idle layout, got %q", msg.Layout)
	}
	data, _ := msg.Data.(map[string]any)
	if data["route_name"] != "Downtown Loop" {
		t.Errorf("unexpected route: %v", data["route_name"])
	}
	if got := data["progress_pct"].(float64); got != 50 {
		t.Errorf("expected progress 50, got %v", got)
	}
}

func TestServer_NoClientsDropsSilently(t *testing.T) {
	t.Parallel()

	s := NewServer(nil)
	// Must not block or panic with zero clients.
	s.SendLayout(context.Background(), "status", map[string]string{"title": "Lights"})
	if s.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", s.ClientCount())
	}
}

func TestServer_WaitForClientTimesOut(t *testing.T) {
	t.Parallel()

	s := NewServer(nil)
	start := time.Now()
	if s.WaitForClient(context.Background(), 50*time.Millisecond) {
		t.Fatal("expected timeout with no clients")
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("returned before the timeout elapsed")
	}
}

// Package display broadcasts layout updates to the 1080×360 cabin display
// over WebSocket. The display is output-only: clients connect, receive
// layout messages, and render; nothing they send is read.
//
// Delivery is best effort. A send to a slow or dead client is dropped and
// the client unregistered; the conversation never blocks on the display.
package display

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/glydways/clyde/internal/ride"
)

// sendTimeout bounds one broadcast write per client.
const sendTimeout = 2 * time.Second

// Message is the wire format pushed to display clients.
type Message struct {
	Layout string `json:"layout"`
	Data   any    `json:"data"`
}

// IdleData is the payload for the "idle" layout: route banner with progress.
type IdleData struct {
	RouteName   string `json:"route_name"`
	NextStop    string `json:"next_stop"`
	ETASeconds  int    `json:"eta_seconds"`
	ProgressPct int    `json:"progress_pct"`
}

// SpeakingData is the payload for the "speaking" layout: the assistant's
// current reply as a caption.
type SpeakingData struct {
	Text string `json:"text"`
}

// Server accepts display client connections and broadcasts layout messages
// to all of them.
type Server struct {
	log *slog.Logger

	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	connected chan struct{}
}

// NewServer creates a display Server with no connected clients.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:       log,
		clients:   make(map[*websocket.Conn]struct{}),
		connected: make(chan struct{}, 1),
	}
}

// Handler returns the HTTP handler that upgrades display connections.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The display runs on the vehicle LAN with no fixed origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("display client rejected", "error", err)
		return
	}

	s.register(conn)
	defer s.unregister(conn)

	// Drain incoming frames so pings are answered; content is ignored.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (s *Server) register(conn *websocket.Conn) {
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	total := len(s.clients)
	s.mu.Unlock()
	select {
	case s.connected <- struct{}{}:
	default:
	}
	s.log.Info("display client connected", "total", total)
}

func (s *Server) unregister(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	total := len(s.clients)
	s.mu.Unlock()
	conn.Close(websocket.StatusNormalClosure, "")
	s.log.Info("display client disconnected", "total", total)
}

// WaitForClient blocks until at least one display client has connected or
// the timeout elapses. Returns true if a client is connected.
func (s *Server) WaitForClient(ctx context.Context, timeout time.Duration) bool {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	if n > 0 {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.connected:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// ClientCount returns the number of connected display clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// SendLayout pushes a layout and its data to every connected client. With no
// clients connected the message is dropped silently.
func (s *Server) SendLayout(ctx context.Context, layout string, data any) {
	msg, err := json.Marshal(Message{Layout: layout, Data: data})
	if err != nil {
		s.log.Error("display message encode failed", "layout", layout, "error", err)
		return
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if len(conns) == 0 {
		s.log.Debug("no display clients, message dropped", "layout", layout)
		return
	}

	for _, c := range conns {
		wctx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := c.Write(wctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			s.log.Warn("display write failed, dropping client", "error", err)
			s.unregister(c)
		}
	}
}

// Idle pushes the idle layout built from the ride context.
func (s *Server) Idle(ctx context.Context, rc ride.Context) {
	s.SendLayout(ctx, "idle", IdleData{
		RouteName:   rc.RouteName,
		NextStop:    rc.NextStop,
		ETASeconds:  rc.ETASeconds,
		ProgressPct: rc.ProgressPct(),
	})
}

// Speaking pushes the speaking layout with the assistant's reply text.
func (s *Server) Speaking(ctx context.Context, text string) {
	s.SendLayout(ctx, "speaking", SpeakingData{Text: text})
}

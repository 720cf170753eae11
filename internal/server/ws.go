// ABOUTME: WebSocket endpoint where tool providers connect and stay resident.
// ABOUTME: Wraps gorilla connections as conn.Transport and runs the handshake.

package server

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	// Tool providers connect from arbitrary hosts; origin checks belong to
	// whatever fronts this listener.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsTransport adapts a gorilla websocket connection to conn.Transport.
// Gorilla permits one concurrent writer, so writes are serialized here.
type wsTransport struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	return data, err
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}

// handleWebSocket accepts a provider connection on /ws/{identity}, registers
// it, kicks off the session handshake, and runs the inbound dispatcher until
// the provider goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimPrefix(r.URL.Path, "/ws/")
	identity = strings.TrimRight(identity, "/")
	if identity == "" || strings.Contains(identity, "/") {
		http.Error(w, "Bad Request: missing identity", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "identity", identity, "error", err)
		return
	}

	c := s.registry.Register(identity, &wsTransport{ws: ws})

	// The handshake issues correlated requests, so the read loop must be
	// pumping before Initialize can complete. Run the handshake aside and
	// keep this goroutine on the dispatcher.
	go func() {
		if err := s.registry.Initialize(context.Background(), c); err != nil {
			s.logger.Warn("session initialization failed",
				"identity", identity,
				"error", err,
			)
		}
	}()

	s.registry.ReadLoop(c)
}

package events

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Operator dashboards only; restrict via a reverse proxy in production.
		return true
	},
}

// Server exposes the Broadcaster over a single WebSocket endpoint so an
// operator dashboard can watch tick/trade activity live (§6, §11). It is
// ambient: if nothing connects, or the listener never starts, the tick loop
// is unaffected.
type Server struct {
	addr        string
	broadcaster *Broadcaster
	logger      *log.Logger
	httpServer  *http.Server
}

// NewServer creates a WebSocket event server bound to addr (e.g. ":8090").
func NewServer(addr string, broadcaster *Broadcaster, logger *log.Logger) *Server {
	s := &Server{
		addr:        addr,
		broadcaster: broadcaster,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving in the background. Any error other than a clean
// Shutdown is logged, not fatal — the engine's tick loop does not depend on
// this server being up.
func (s *Server) Start() {
	go func() {
		s.logger.Printf("events: websocket server listening on %s (/ws)", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("events: server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleWebSocket upgrades an HTTP connection and registers it with the
// Broadcaster for the life of the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("events: websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	client := &Client{
		ID:   r.RemoteAddr,
		Send: make(chan interface{}, 256),
	}

	s.broadcaster.Register(client)
	defer s.broadcaster.Unregister(client)

	s.logger.Printf("events: client connected from %s", client.ID)

	go s.writePump(ws, client)
	s.readPump(ws, client)
}

// writePump relays broadcast messages to the client and keeps the connection
// alive with periodic pings.
func (s *Server) writePump(ws *websocket.Conn, client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(message); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Printf("events: write error for %s: %v", client.ID, err)
				}
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames, handling ping/pong and detecting
// disconnects. Operators don't send commands over this channel.
func (s *Server) readPump(ws *websocket.Conn, client *Client) {
	defer func() {
		s.broadcaster.Unregister(client)
		s.logger.Printf("events: client disconnected from %s", client.ID)
	}()

	ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("events: read error for %s: %v", client.ID, err)
			}
			return
		}
	}
}

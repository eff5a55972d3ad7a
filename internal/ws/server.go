package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// HandlerFunc processes a client message. Handlers run on their own
// goroutine, so a slow handler does not block the connection's read pump.
type HandlerFunc func(c *Conn, msg *ClientMessage)

// Server manages WebSocket connections and message dispatch.
type Server struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}

	handlers     map[string]HandlerFunc
	connectFn    func(c *Conn)
	disconnectFn func(c *Conn)

	// serial events run on the connection's ordered worker.
	serial map[string]bool
}

func NewServer() *Server {
	return &Server{
		conns:    make(map[*Conn]struct{}),
		handlers: make(map[string]HandlerFunc),
		serial:   make(map[string]bool),
	}
}

// Handle registers a handler for a named event.
func (s *Server) Handle(event string, fn HandlerFunc) {
	s.handlers[event] = fn
}

// HandleSerial registers a handler that runs on the connection's serial
// worker: serial events of one connection run one at a time, in the order the
// client sent them. A slow serial handler delays later serial events of that
// connection but never the read pump or other handlers.
func (s *Server) HandleSerial(event string, fn HandlerFunc) {
	s.handlers[event] = fn
	s.serial[event] = true
}

// HandleConnect registers a callback that fires when a new WebSocket
// connection is established, before the read pump starts.
func (s *Server) HandleConnect(fn func(c *Conn)) {
	s.connectFn = fn
}

// OnDisconnect registers a callback that fires when a connection is removed.
func (s *Server) OnDisconnect(fn func(c *Conn)) {
	s.disconnectFn = fn
}

// ServeHTTP upgrades the HTTP request to a WebSocket connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The binary serves the frontend from the same origin; dev servers
		// proxy from elsewhere.
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("ws accept", "err", err)
		return
	}

	c := newConn(ws, s)
	s.add(c)

	slog.Debug("ws connected", "remote", r.RemoteAddr, "conn", c.id)

	if s.connectFn != nil {
		s.connectFn(c)
	}

	// Block on the read pump; this goroutine is owned by net/http
	c.readPump(r.Context())
}

// BroadcastAuthenticated marshals a push event once and sends it to every
// authenticated connection accepted by filter. A nil filter accepts all.
func BroadcastAuthenticated[T any](s *Server, event string, data T, filter func(*Conn) bool) {
	raw, err := json.Marshal(ServerMessage[T]{Event: event, Data: data})
	if err != nil {
		slog.Error("ws marshal broadcast", "err", err, "event", event)
		return
	}

	s.mu.RLock()
	targets := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		if c.UserID() != 0 && (filter == nil || filter(c)) {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		c.writeRaw(raw)
	}
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) add(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) remove(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	if s.disconnectFn != nil {
		s.disconnectFn(c)
	}

	slog.Debug("ws disconnected", "conn", c.id, "remaining", s.ConnectionCount())
}

func (s *Server) dispatch(c *Conn, msg *ClientMessage) {
	if s.serial[msg.Event] {
		c.enqueueSerial(msg)
		return
	}
	go s.Dispatch(c, msg)
}

// Dispatch looks up and invokes the handler for the given message event.
func (s *Server) Dispatch(c *Conn, msg *ClientMessage) {
	h, ok := s.handlers[msg.Event]
	if !ok {
		slog.Warn("ws unknown event", "event", msg.Event)
		if msg.ID != nil {
			SendAck(c, *msg.ID, ErrorResponse{OK: false, Msg: "unknown event: " + msg.Event})
		}
		return
	}
	h(c, msg)
}

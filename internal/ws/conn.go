package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 1 << 20 // 1 MB
	serialQueueLen = 64
)

var connIDCounter uint64

// Conn wraps a single WebSocket connection.
type Conn struct {
	ws      *websocket.Conn
	server  *Server
	closeCh chan struct{}
	id      string

	// serial feeds the connection's ordered handler worker.
	serial chan *ClientMessage

	mu     sync.Mutex
	userID int // 0 = unauthenticated
	admin  bool
	closed bool
}

func newConn(ws *websocket.Conn, server *Server) *Conn {
	id := atomic.AddUint64(&connIDCounter, 1)
	return &Conn{
		id:      "c" + strconv.FormatUint(id, 10),
		ws:      ws,
		server:  server,
		closeCh: make(chan struct{}),
		serial:  make(chan *ClientMessage, serialQueueLen),
	}
}

// ID returns a unique identifier for this connection.
func (c *Conn) ID() string {
	return c.id
}

// SetUser marks this connection as authenticated. A userID of 0 logs it out.
func (c *Conn) SetUser(userID int, admin bool) {
	c.mu.Lock()
	c.userID = userID
	c.admin = admin && userID != 0
	c.mu.Unlock()
}

// UserID returns the authenticated user ID (0 if not authenticated).
func (c *Conn) UserID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// IsAdmin reports whether the authenticated user is an administrator.
func (c *Conn) IsAdmin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admin
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.closeCh
}

// SendAck sends an ack response for a client request.
// Generic to avoid interface boxing; json.Marshal sees the concrete type directly.
func SendAck[T any](c *Conn, id int64, data T) {
	writeJSON(c, AckMessage[T]{ID: id, Data: data})
}

// SendEvent sends a server push event with a single data payload.
func SendEvent[T any](c *Conn, event string, data T) {
	writeJSON(c, ServerMessage[T]{Event: event, Data: data})
}

func writeJSON[T any](c *Conn, v T) {
	// Marshal outside the lock; this is CPU work, not I/O
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("ws marshal", "err", err)
		return
	}

	c.writeRaw(data)
}

// writeRaw sends pre-marshalled JSON bytes to the connection.
func (c *Conn) writeRaw(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("ws write", "err", err, "conn", c.id)
		c.closeLocked()
	}
}

// readPump reads messages from the WebSocket and dispatches them. The
// connection is closed before it is removed, so disconnect callbacks observe
// Done as closed.
func (c *Conn) readPump(ctx context.Context) {
	defer func() {
		c.Close()
		c.server.remove(c)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	go c.serialLoop()

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			slog.Debug("ws read", "err", err, "conn", c.id)
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("ws unmarshal", "err", err)
			continue
		}

		c.server.dispatch(c, &msg)
	}
}

// enqueueSerial hands msg to the serial worker. It blocks only while the
// queue is full.
func (c *Conn) enqueueSerial(msg *ClientMessage) {
	select {
	case c.serial <- msg:
	case <-c.closeCh:
	}
}

// serialLoop runs serial handlers one at a time in arrival order until the
// connection closes. Queued messages are dropped on close.
func (c *Conn) serialLoop() {
	for {
		select {
		case msg := <-c.serial:
			c.server.Dispatch(c, msg)
		case <-c.closeCh:
			return
		}
	}
}

// Close shuts down the connection.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.closeCh)
	c.ws.Close(websocket.StatusNormalClosure, "")
}

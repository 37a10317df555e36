package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adx-agent/backend/internal/buffer"
	"github.com/adx-agent/backend/internal/logging"
	"github.com/adx-agent/backend/internal/metrics"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Client -> Server message types. Anything other than ping is chat input.
	MessageTypePing MessageType = "ping"

	// Server -> Client message types
	MessageTypeConnectionEstablished MessageType = "connection_established"
	MessageTypeHistory               MessageType = "history"
	MessageTypePong                  MessageType = "pong"
	MessageTypeChatResponse          MessageType = "chat_response"
	MessageTypeError                 MessageType = "error"
)

// Message represents a WebSocket message.
type Message struct {
	Type      MessageType       `json:"type"`
	Message   string            `json:"message,omitempty"`
	Content   string            `json:"content,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Messages  []json.RawMessage `json:"messages,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
}

// Stamp sets the timestamp of m to now and returns m.
func (m *Message) Stamp() *Message {
	now := time.Now()
	m.Timestamp = &now
	return m
}

// Send errors.
var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// sendBufferSize is the number of messages queued per client.
const sendBufferSize = 256

// Conn is a live connection as seen by the hub. Send must not block.
type Conn interface {
	Send(data []byte) error
	Close()
}

// Client represents a WebSocket client connection.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send queues a message to be sent to the client. A client that cannot keep
// up is closed.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return ErrSendBufferFull
	}
}

// Close closes the client's send queue; the write pump then closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub is the set of live connections every broadcast goes to.
type Hub struct {
	conns map[Conn]struct{}
	mu    sync.RWMutex

	history *buffer.Ring[[]byte]
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHub creates a hub remembering the last historySize broadcasts; zero
// disables history.
func NewHub(historySize int, m *metrics.Metrics, logger *zap.Logger) *Hub {
	h := &Hub{
		conns:   make(map[Conn]struct{}),
		metrics: m,
		logger:  logging.OrNop(logger).Named("hub"),
	}
	if historySize > 0 {
		h.history = buffer.NewRing[[]byte](historySize)
	}
	return h
}

// Register adds a connection. It reports whether the connection was new.
func (h *Hub) Register(c Conn) bool {
	h.mu.Lock()
	_, exists := h.conns[c]
	if !exists {
		h.conns[c] = struct{}{}
	}
	h.mu.Unlock()

	if !exists {
		h.metrics.ConnectionOpened()
	}
	return !exists
}

// Join registers c and hands greet the remembered broadcasts, atomically
// with respect to Broadcast: a broadcast is either in the history passed to
// greet or sent to c afterwards, never both. greet runs under the hub lock
// and must only queue messages on c.
func (h *Hub) Join(c Conn, greet func(history [][]byte)) bool {
	h.mu.Lock()
	_, exists := h.conns[c]
	if !exists {
		greet(h.History())
		h.conns[c] = struct{}{}
	}
	h.mu.Unlock()

	if !exists {
		h.metrics.ConnectionOpened()
	}
	return !exists
}

// Unregister removes and closes a connection. Removing a connection that is
// not registered does nothing and returns false.
func (h *Hub) Unregister(c Conn) bool {
	h.mu.Lock()
	_, exists := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()

	if !exists {
		return false
	}
	c.Close()
	h.metrics.ConnectionClosed()
	return true
}

// Broadcast sends data to every connection registered at call time and
// returns how many accepted it. Connections that fail are unregistered
// before Broadcast returns.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.Lock()
	if h.history != nil {
		h.history.Push(data)
	}
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var failed []Conn
	for _, c := range conns {
		if err := c.Send(data); err != nil {
			h.logger.Debug("dropping connection after failed send", zap.Error(err))
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		h.Unregister(c)
	}

	h.metrics.Broadcast(len(failed))
	if len(failed) > 0 {
		h.logger.Info("broadcast dropped connections",
			zap.Int("delivered", len(conns)-len(failed)),
			zap.Int("dropped", len(failed)))
	}
	return len(conns) - len(failed)
}

// BroadcastMessage sends a Message to all connected clients.
func (h *Hub) BroadcastMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// History returns the remembered broadcasts, oldest first.
func (h *Hub) History() [][]byte {
	if h.history == nil {
		return nil
	}
	return h.history.Items()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close closes all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[Conn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
		h.metrics.ConnectionClosed()
	}
}

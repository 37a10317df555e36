package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adx-agent/backend/internal/chat"
	"github.com/adx-agent/backend/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Upper bound on one chat exchange started from a socket message.
	chatTimeout = 2 * time.Minute

	// Chat messages waiting behind the running exchange of one connection.
	chatQueueSize = 4
)

const (
	welcomeText  = "Connected to ADX Agent WebSocket"
	chatBusyText = "too many chat messages in flight, message dropped"
)

// ChatSender runs a chat exchange; the reply is broadcast by the sender.
type ChatSender interface {
	Send(ctx context.Context, sessionID, content string) (*chat.Reply, error)
}

// inbound is the part of a client message the handler routes on.
type inbound struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	SessionID string      `json:"session_id"`
}

// Handler accepts WebSocket connections and routes their messages.
type Handler struct {
	hub      *Hub
	chat     ChatSender
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler. chat may be nil, in which case
// chat messages are only echoed.
func NewHandler(hub *Hub, chat ChatSender, logger *zap.Logger) *Handler {
	return &Handler{
		hub:  hub,
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logging.OrNop(logger).Named("ws"),
	}
}

// HandleConnection upgrades the request, greets the client, replays recent
// broadcasts and starts the read and write pumps.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn)

	h.hub.Join(client, func(history [][]byte) {
		h.sendTo(client, (&Message{Type: MessageTypeConnectionEstablished, Message: welcomeText}).Stamp())
		h.sendHistory(client, history)
	})
	h.logger.Info("client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Int("clients", h.hub.ClientCount()))

	ctx, cancel := context.WithCancel(context.Background())
	var chats chan inbound
	if h.chat != nil {
		chats = make(chan inbound, chatQueueSize)
		go h.chatWorker(ctx, client, chats)
	}

	go h.writePump(client)
	go h.readPump(cancel, client, chats)

	return nil
}

// sendHistory replays recent broadcasts as one message.
func (h *Handler) sendHistory(client *Client, history [][]byte) {
	if len(history) == 0 {
		return
	}

	messages := make([]json.RawMessage, 0, len(history))
	for _, item := range history {
		if json.Valid(item) {
			messages = append(messages, item)
		}
	}
	if len(messages) == 0 {
		return
	}

	h.sendTo(client, &Message{Type: MessageTypeHistory, Messages: messages})
}

func (h *Handler) sendTo(client *Client, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}
	if err := client.Send(data); err != nil {
		h.logger.Debug("failed to queue message", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

// handleMessage processes one message from a client. chats is the
// connection's chat queue, nil when chat is disabled.
func (h *Handler) handleMessage(client *Client, chats chan<- inbound, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Debug("failed to unmarshal message", zap.Error(err))
		h.sendTo(client, (&Message{Type: MessageTypeError, Error: "invalid message: " + err.Error()}).Stamp())
		return
	}

	switch msg.Type {
	case MessageTypePing:
		h.sendTo(client, (&Message{Type: MessageTypePong}).Stamp())
	default:
		h.handleChat(client, chats, msg, raw)
	}
}

// handleChat echoes the inbound message to every client and, when it has
// content, queues a chat exchange whose reply is broadcast as well. A full
// queue drops the message and tells the sender.
func (h *Handler) handleChat(client *Client, chats chan<- inbound, msg inbound, raw []byte) {
	if err := h.hub.BroadcastMessage((&Message{Type: MessageTypeChatResponse, Data: raw}).Stamp()); err != nil {
		h.logger.Error("failed to broadcast chat message", zap.Error(err))
	}

	if chats == nil || msg.Content == "" {
		return
	}

	select {
	case chats <- msg:
	default:
		h.logger.Warn("chat queue full, dropping message", zap.String("session_id", msg.SessionID))
		h.sendTo(client, (&Message{
			Type:      MessageTypeError,
			SessionID: msg.SessionID,
			Error:     chatBusyText,
		}).Stamp())
	}
}

// chatWorker runs the queued chat exchanges of one connection, one at a
// time and in arrival order, until ctx ends.
func (h *Handler) chatWorker(ctx context.Context, client *Client, chats <-chan inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-chats:
			h.runChat(ctx, client, msg)
		}
	}
}

func (h *Handler) runChat(ctx context.Context, client *Client, msg inbound) {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	if _, err := h.chat.Send(ctx, msg.SessionID, msg.Content); err != nil {
		if ctx.Err() != nil {
			return
		}
		h.sendTo(client, (&Message{
			Type:      MessageTypeError,
			SessionID: msg.SessionID,
			Error:     err.Error(),
		}).Stamp())
	}
}

// readPump pumps messages from the WebSocket connection to the handler.
// cancel stops the connection's chat worker.
func (h *Handler) readPump(cancel context.CancelFunc, client *Client, chats chan<- inbound) {
	defer func() {
		cancel()
		h.hub.Unregister(client)
		client.Close()
		client.Conn().Close()
		h.logger.Info("client disconnected", zap.Int("clients", h.hub.ClientCount()))
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}

		h.handleMessage(client, chats, message)
	}
}

// writePump pumps queued messages to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame.
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

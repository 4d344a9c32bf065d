// Package ws streams chat events to connected clients and accepts chat
// frames over the same socket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/chat"
	"github.com/vivenzalife/vivenza/internal/metrics"
	"github.com/vivenzalife/vivenza/internal/models"
	"github.com/vivenzalife/vivenza/pkg/i18n"
)

const (
	FrameSendMessage = "send_message"
	FrameMarkRead    = "mark_read"
	FrameAck         = "ack"
	FrameError       = "error"

	sendBuffer   = 256
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	frameTimeout = 10 * time.Second
	maxFrameSize = 64 * 1024
)

// Conversations is the subset of chat.Service reachable from a socket.
type Conversations interface {
	SendMessage(ctx context.Context, callerID, conversationID, content string, sharedPostID *string) (*models.Message, error)
	MarkRead(ctx context.Context, callerID, conversationID string) (chat.ReadReceipt, error)
}

type Hub struct {
	clients    map[string]map[*Client]struct{}
	broadcast  chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	chat       Conversations
	log        logrus.FieldLogger
	mu         sync.RWMutex
}

type Client struct {
	userID string
	conn   *websocket.Conn
	hub    *Hub
	send   chan any
}

type delivery struct {
	userIDs []string
	event   chat.Event
}

// Frame is a client to server message.
type Frame struct {
	Type            string  `json:"type"`
	ConversationID  string  `json:"conversation_id"`
	Content         string  `json:"content,omitempty"`
	SharedPostID    *string `json:"shared_post_id,omitempty"`
	ClientMessageID string  `json:"client_message_id,omitempty"`
}

// Reply answers a single frame on the sender's own socket.
type Reply struct {
	Type            string            `json:"type"`
	ClientMessageID string            `json:"client_message_id,omitempty"`
	MessageID       string            `json:"message_id,omitempty"`
	Receipt         *chat.ReadReceipt `json:"receipt,omitempty"`
	Error           string            `json:"error,omitempty"`
	Code            apperr.Code       `json:"code,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS middleware and the token.
		return true
	},
}

func NewHub(conversations Conversations, log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		broadcast:  make(chan delivery, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		chat:       conversations,
		log:        log,
	}
}

// IsUserOnline checks if a user holds at least one live connection.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Publish queues an event for the given users. It never blocks; when the
// queue is full the event is dropped and clients catch up by polling.
func (h *Hub) Publish(userIDs []string, event chat.Event) {
	select {
	case h.broadcast <- delivery{userIDs: userIDs, event: event}:
	default:
		h.log.WithField("type", event.Type).Warn("realtime queue full, dropping event")
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.ConnectionOpened()
			h.log.WithFields(logrus.Fields{"user_id": client.userID, "online_users": total}).Debug("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[client.userID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					close(client.send)
					metrics.ConnectionClosed()
				}
				if len(set) == 0 {
					delete(h.clients, client.userID)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithFields(logrus.Fields{"user_id": client.userID, "online_users": total}).Debug("client disconnected")

		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range d.userIDs {
		for client := range h.clients[userID] {
			select {
			case client.send <- d.event:
			default:
				h.log.WithField("user_id", userID).Warn("send buffer full, dropping event")
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for client := range set {
			close(client.send)
			metrics.ConnectionClosed()
		}
		delete(h.clients, userID)
	}
}

// HandleWebSocket upgrades an authenticated request. The auth middleware
// must have stored the caller under "user_id".
func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": i18n.Translate("unauthorized"), "code": apperr.Unauthorized})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &Client{
		userID: userID,
		conn:   conn,
		hub:    h,
		send:   make(chan any, sendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("user_id", c.userID).Warn("websocket read error")
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		if reply := c.handleFrame(frame); reply != nil {
			c.reply(reply)
		}
	}
}

// handleFrame routes a frame through the chat service with the socket's
// identity. Unknown frame types are ignored.
func (c *Client) handleFrame(frame Frame) *Reply {
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	switch frame.Type {
	case FrameSendMessage:
		msg, err := c.hub.chat.SendMessage(ctx, c.userID, frame.ConversationID, frame.Content, frame.SharedPostID)
		if err != nil {
			return errorReply(frame, err)
		}
		return &Reply{Type: FrameAck, ClientMessageID: frame.ClientMessageID, MessageID: msg.ID}

	case FrameMarkRead:
		receipt, err := c.hub.chat.MarkRead(ctx, c.userID, frame.ConversationID)
		if err != nil {
			return errorReply(frame, err)
		}
		return &Reply{Type: FrameAck, ClientMessageID: frame.ClientMessageID, Receipt: &receipt}
	}
	return nil
}

func errorReply(frame Frame, err error) *Reply {
	return &Reply{
		Type:            FrameError,
		ClientMessageID: frame.ClientMessageID,
		Error:           i18n.Translate(apperr.PublicMessage(err)),
		Code:            apperr.CodeOf(err),
	}
}

func (c *Client) reply(r *Reply) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	// The send channel is closed under the write lock on unregister.
	if _, ok := c.hub.clients[c.userID][c]; !ok {
		return
	}
	select {
	case c.send <- r:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.hub.log.WithError(err).Error("failed to encode websocket frame")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

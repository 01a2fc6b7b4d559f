package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Server-to-client message types.
const (
	MessageChangeEvent = "changeEvent"
	MessagePong        = "PONG"
)

// Client-to-server message types.
const (
	MessageSubscribeModel   = "SUBSCRIBE_MODEL"
	MessageUnsubscribeModel = "UNSUBSCRIBE_MODEL"
	MessagePing             = "PING"
)

// ServerMessage is the envelope for everything written to a connection.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Client is a middleman between one websocket connection and the hub. Its
// room set mirrors the hub's membership index so unregistration can release
// every room without scanning the whole index.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan ServerMessage

	// ID identifies this connection (one user can hold several).
	ID uuid.UUID

	// Identity established at handshake time.
	UserID  string
	IsAdmin bool

	// rooms is this connection's joined-room set.
	rooms map[domain.RoomTarget]bool

	// closeOnce ensures the send channel is only closed once
	closeOnce sync.Once

	// closed marks the send channel unusable. Checked under mu by every
	// sender, so nothing can send on the channel once it is closed.
	closed bool

	// mu protects the rooms set and the closed flag
	mu sync.RWMutex

	logger *slog.Logger
}

// NewClient creates a client for an authenticated connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID string, isAdmin bool, sendBuffer int, logger *slog.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	id := uuid.New()
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan ServerMessage, sendBuffer),
		ID:      id,
		UserID:  userID,
		IsAdmin: isAdmin,
		rooms:   make(map[domain.RoomTarget]bool),
		logger:  logger.With("connection_id", id.String(), "user_id", userID),
	}
}

// CloseSend safely closes the send channel exactly once. The closed flag
// flips under the same lock trySend holds while sending, so an in-flight
// send and the close cannot interleave.
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

// trySend queues an outbound message without blocking. sent reports whether
// the message was queued; open reports whether the connection still accepts
// messages at all. A full buffer on an open connection is the caller's
// signal to cut the connection loose.
func (c *Client) trySend(message ServerMessage) (sent, open bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false, false
	}
	select {
	case c.send <- message:
		return true, true
	default:
		return false, true
	}
}

func (c *Client) addRoom(room domain.RoomTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = true
}

func (c *Client) removeRoom(room domain.RoomTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

// InRoom reports whether the connection is currently joined to a room.
func (c *Client) InRoom(room domain.RoomTarget) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// Rooms returns a copy of the joined-room set.
func (c *Client) Rooms() []domain.RoomTarget {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]domain.RoomTarget, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.writeJSON(message); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes a JSON message to the websocket connection.
func (c *Client) writeJSON(message ServerMessage) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(message); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// --- Incoming Message Handling ---

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SubscribePayload is the payload for subscribe/unsubscribe messages.
type SubscribePayload struct {
	Model string `json:"model"`
}

// handleIncomingMessage processes messages received from the client.
// Malformed input is dropped without an error surfaced to the client.
func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case MessageSubscribeModel:
		if model, ok := c.parseModel(msg.Payload); ok {
			c.hub.subscribeModel(c, model)
		}

	case MessageUnsubscribeModel:
		if model, ok := c.parseModel(msg.Payload); ok {
			c.hub.unsubscribeModel(c, model)
		}

	case MessagePing:
		// Client-side keep-alive, respond with pong
		c.sendPong()

	default:
		// Application messages outside the realtime contract pass through
		// unanswered.
		c.logger.Debug("ignoring message type", "type", msg.Type)
	}
}

// parseModel extracts and validates the model name of a subscribe message.
func (c *Client) parseModel(payload json.RawMessage) (string, bool) {
	var p SubscribePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal subscribe payload", "error", err)
		return "", false
	}
	if p.Model == "" {
		c.logger.Warn("subscribe request with empty model name")
		return "", false
	}
	return p.Model, true
}

func (c *Client) sendPong() {
	// Best-effort: a full buffer or an already-closed connection skips the
	// pong rather than blocking or panicking.
	c.trySend(ServerMessage{Type: MessagePong})
}

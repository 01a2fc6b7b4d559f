package websocket

import (
	"log/slog"
	"sync"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	"github.com/meridianapp/realtime-gateway/internal/core/ports"
)

// routedEvent pairs a backplane delivery with its target rooms.
type routedEvent struct {
	rooms []domain.RoomTarget
	event domain.WireEvent
}

// Hub maintains the set of active Clients and the room membership index,
// and fans backplane-delivered events out to matching local connections.
// Membership is gateway-local bookkeeping only; nothing here touches the
// store or the backplane.
type Hub struct {
	// clients is the set of all live connections on this instance.
	clients map[*Client]bool

	// rooms maps room targets to the local connections joined to them.
	rooms map[domain.RoomTarget]map[*Client]bool

	// broadcast carries events delivered by the backplane adapter.
	broadcast chan routedEvent

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	logger *slog.Logger
}

// Ensure Hub implements the local delivery interface.
var _ ports.Broadcaster = (*Hub)(nil)

// NewHub creates a new connection hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[domain.RoomTarget]map[*Client]bool),
		broadcast:  make(chan routedEvent, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Deliver hands a backplane-delivered event to the hub's event loop.
// Delivery is best-effort: when the loop is saturated the event is dropped
// with a warning rather than blocking the backplane subscriber.
func (h *Hub) Deliver(rooms []domain.RoomTarget, event domain.WireEvent) {
	select {
	case h.broadcast <- routedEvent{rooms: rooms, event: event}:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"collection", event.Collection,
			"document_id", event.ID,
		)
	}
}

// Run starts the hub's event loop. This MUST be run as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case routed := <-h.broadcast:
			h.deliverEvent(routed)
		}
	}
}

// registerClient adds a client and performs its identity-derived auto-joins:
// the per-user room, the authenticated room, and the admin room when the
// handshake identity carried the admin flag.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	h.joinLocked(client, domain.UserRoom(client.UserID))
	h.joinLocked(client, domain.AuthenticatedRoom)
	if client.IsAdmin {
		h.joinLocked(client, domain.AdminRoom)
	}

	h.logger.Info("client registered",
		"connection_id", client.ID,
		"user_id", client.UserID,
		"is_admin", client.IsAdmin,
	)
}

// unregisterClient removes a client from the hub and all its rooms.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	delete(h.clients, client)

	for _, room := range client.Rooms() {
		h.leaveLocked(client, room)
	}

	client.CloseSend()

	h.logger.Info("client unregistered",
		"connection_id", client.ID,
		"user_id", client.UserID,
	)
}

// deliverEvent sends an event to every local connection joined to any of
// the target rooms. A connection joined to several target rooms receives
// the event once.
func (h *Hub) deliverEvent(routed routedEvent) {
	h.mu.RLock()
	seen := make(map[*Client]bool)
	targets := make([]*Client, 0)
	for _, room := range routed.rooms {
		for client := range h.rooms[room] {
			if !seen[client] {
				seen[client] = true
				targets = append(targets, client)
			}
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	h.logger.Debug("delivering event",
		"collection", routed.event.Collection,
		"operation", routed.event.Operation,
		"client_count", len(targets),
	)

	message := ServerMessage{Type: MessageChangeEvent, Payload: routed.event}
	for _, client := range targets {
		sent, open := client.trySend(message)
		if !open {
			// Already unregistered by a concurrent teardown; nothing to do.
			continue
		}
		if !sent {
			// Client's send buffer is full; cut the connection loose.
			h.logger.Warn("client send buffer full, unregistering",
				"connection_id", client.ID,
				"user_id", client.UserID,
			)
			h.unregisterClient(client)
		}
	}
}

// subscribeModel joins a client to a model room. Joining twice is a no-op.
// A client that already left the hub is ignored: re-indexing it would make
// the next delivery target a torn-down connection.
func (h *Hub) subscribeModel(client *Client, model string) {
	room := domain.ModelRoom(model)

	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	h.joinLocked(client, room)
	h.mu.Unlock()

	h.logger.Debug("client subscribed to model",
		"connection_id", client.ID,
		"model", model,
	)
}

// unsubscribeModel removes a client from a model room.
func (h *Hub) unsubscribeModel(client *Client, model string) {
	room := domain.ModelRoom(model)

	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	h.leaveLocked(client, room)
	h.mu.Unlock()

	h.logger.Debug("client unsubscribed from model",
		"connection_id", client.ID,
		"model", model,
	)
}

func (h *Hub) joinLocked(client *Client, room domain.RoomTarget) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	client.addRoom(room)
}

func (h *Hub) leaveLocked(client *Client, room domain.RoomTarget) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.removeRoom(room)
}

// ClientCount returns the number of live connections on this instance.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ClientsInRoom returns the number of local connections joined to a room.
func (h *Hub) ClientsInRoom(room domain.RoomTarget) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

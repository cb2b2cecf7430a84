package hub

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

// Envelope pairs an inbound message with the client that sent it.
type Envelope struct {
	Client  *Client
	Message *protocol.Message
}

// Hub is the central brain of the signaling server.
// It owns every room and client and only touches them from Run.
type Hub struct {
	rooms   map[string]*Room
	clients map[string]*Client

	// Register admits a freshly upgraded connection.
	Register chan *Client

	// Unregister removes a connection, on leave or transport drop.
	Unregister chan *Client

	// Broadcast carries inbound messages for processing.
	Broadcast chan *Envelope

	done   chan struct{}
	logger *slog.Logger
}

// New creates a Hub. Call Run to start processing.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Envelope),
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub"),
	}
}

// Run is the single goroutine that mutates hub state. It returns when ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.clients[client.ID] = client
			h.logger.Debug("client registered", "client", client.ID)

		case client := <-h.Unregister:
			h.handleDisconnect(client)

		case env := <-h.Broadcast:
			h.handleMessage(env.Client, env.Message)
		}
	}
}

// Admit hands c to the hub, reporting false once the hub has stopped.
func (h *Hub) Admit(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) broadcast(env *Envelope) bool {
	select {
	case h.Broadcast <- env:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handleMessage(c *Client, msg *protocol.Message) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	switch msg.Type {
	case protocol.TypeJoin:
		h.handleJoin(c, msg)

	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		h.relay(c, msg)

	case protocol.TypeMute:
		h.status(c, msg, protocol.TypePeerMuted)

	case protocol.TypeScreenStatus:
		h.status(c, msg, protocol.TypePeerScreen)

	default:
		h.logger.Debug("unknown message type", "type", msg.Type, "client", c.ID)
	}
}

func (h *Hub) handleJoin(c *Client, msg *protocol.Message) {
	roomID := msg.RoomID
	if roomID == "" {
		h.logger.Debug("join without room", "client", c.ID)
		return
	}
	if c.RoomID != "" {
		h.logger.Warn("ignoring second join", "client", c.ID, "room", c.RoomID, "requested", roomID)
		return
	}

	room, ok := h.rooms[roomID]
	if ok && room.Full() {
		h.logger.Info("room full", "room", roomID, "client", c.ID)
		h.send(c, &protocol.Message{Type: protocol.TypeFull, RoomID: roomID})
		return
	}
	if !ok {
		room = newRoom(roomID)
		h.rooms[roomID] = room
	}

	c.DisplayName = msg.DisplayName
	if c.DisplayName == "" {
		c.DisplayName = DefaultDisplayName(c.ID)
	}

	peers := room.peers()
	room.add(c)
	c.RoomID = roomID

	h.send(c, &protocol.Message{
		Type:        protocol.TypeJoined,
		RoomID:      roomID,
		You:         c.ID,
		DisplayName: c.DisplayName,
		Peers:       peers,
	})

	for _, other := range room.others(c) {
		h.send(other, &protocol.Message{
			Type:        protocol.TypePeerJoined,
			RoomID:      roomID,
			ID:          c.ID,
			DisplayName: c.DisplayName,
		})
	}

	h.logger.Info("client joined", "room", roomID, "client", c.ID, "name", c.DisplayName, "members", room.Len())
}

// relay forwards offer, answer and ice-candidate messages to their addressee.
// Unroutable messages are dropped without telling anyone.
func (h *Hub) relay(c *Client, msg *protocol.Message) {
	target, ok := h.clients[msg.To]
	if !ok {
		h.logger.Debug("dropping unroutable message", "type", msg.Type, "from", c.ID, "to", msg.To)
		return
	}

	out := *msg
	out.From = c.ID
	h.send(target, &out)
}

// status fans presentation status out: unicast when addressed, otherwise to
// the sender's room minus the sender.
func (h *Hub) status(c *Client, msg *protocol.Message, outType string) {
	out := &protocol.Message{
		Type:    outType,
		From:    c.ID,
		Payload: msg.Payload,
	}

	if msg.To != "" {
		if target, ok := h.clients[msg.To]; ok {
			h.send(target, out)
		}
		return
	}

	room, ok := h.rooms[c.RoomID]
	if !ok {
		return
	}
	for _, other := range room.others(c) {
		h.send(other, out)
	}
}

func (h *Hub) handleDisconnect(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)

	if room, ok := h.rooms[c.RoomID]; ok && room.remove(c) {
		for _, other := range room.members {
			h.send(other, &protocol.Message{
				Type:        protocol.TypePeerLeft,
				RoomID:      room.ID,
				ID:          c.ID,
				DisplayName: c.DisplayName,
			})
		}

		if room.Len() == 0 {
			delete(h.rooms, room.ID)
			h.logger.Info("room deleted", "room", room.ID)
		} else {
			h.logger.Info("client left", "room", room.ID, "client", c.ID, "members", room.Len())
		}
	}

	close(c.Send)
}

func (h *Hub) shutdown() {
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.Send)
	}
	clear(h.rooms)
}

// send queues msg without blocking the hub; a full queue drops it.
func (h *Hub) send(c *Client, msg *protocol.Message) {
	select {
	case c.Send <- msg:
	default:
		h.logger.Warn("send queue full, dropping message", "client", c.ID, "type", msg.Type)
	}
}

// DefaultDisplayName is used when a participant joins without a name.
func DefaultDisplayName(id string) string {
	if len(id) > 6 {
		id = id[:6]
	}
	return "User-" + id
}

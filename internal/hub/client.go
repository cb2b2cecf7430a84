package hub

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/meshcall/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP with several tracks

	sendBuffer = 256
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	// ID is assigned at upgrade time and is unique for the connection's lifetime.
	ID string

	// DisplayName is set when the client joins a room.
	DisplayName string

	// RoomID is the room the client is in, empty until it joins.
	RoomID string

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// Send is a buffered channel of outbound messages. The hub writes to it,
	// WritePump drains it to the websocket.
	Send chan *protocol.Message

	hub    *Hub
	codec  protocol.Codec
	logger *slog.Logger
}

// NewClient creates a client with a fresh id. Outbound messages are encoded
// with codec.
func NewClient(h *Hub, conn *websocket.Conn, codec protocol.Codec) *Client {
	id := uuid.NewString()
	return &Client{
		ID:     id,
		Conn:   conn,
		Send:   make(chan *protocol.Message, sendBuffer),
		hub:    h,
		codec:  codec,
		logger: h.logger.With("client", id),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		frameType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}

		codec := protocol.CodecForFrame(frameType)
		if codec == nil {
			continue
		}

		var msg protocol.Message
		if err := codec.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("dropping malformed frame", "codec", codec.Name(), "error", err)
			continue
		}

		if !c.hub.broadcast(&Envelope{Client: c, Message: &msg}) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.codec.Marshal(message)
			if err != nil {
				c.logger.Error("encode failed", "type", message.Type, "error", err)
				continue
			}
			if err := c.Conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Package signaling is the participant side of the hub websocket.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/meshcall/internal/dns"
	"github.com/BioHazard786/meshcall/internal/protocol"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	handshakeTimeout = 10 * time.Second
	maxMessageSize   = 64 * 1024
	queueSize        = 64
)

var (
	ErrClosed       = errors.New("signaling connection closed")
	ErrNotConnected = errors.New("signaling client not connected")
)

// Client manages the websocket connection to the hub.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	codec     protocol.Codec
	resolver  *dns.Resolver
	logger    *slog.Logger

	incoming  chan *protocol.Message
	outgoing  chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for serverURL. Frames are encoded with codec,
// which must match the codec requested in the URL.
func NewClient(serverURL string, codec protocol.Codec, logger *slog.Logger) *Client {
	if codec == nil {
		codec = protocol.JSON
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		codec:     codec,
		resolver:  dns.NewResolver(),
		logger:    logger.With("component", "signaling"),
		incoming:  make(chan *protocol.Message, queueSize),
		outgoing:  make(chan *protocol.Message, queueSize),
		done:      make(chan struct{}),
	}
}

// Connect dials the hub and starts the read and write pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	// Host lookups fall back to public DNS when the system resolver fails.
	dialer := &websocket.Dialer{
		NetDialContext:   c.resolver.DialContext,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	c.logger.Debug("connected", "url", u.Redacted(), "codec", c.codec.Name())
	return nil
}

// readPump decodes frames from the hub into Incoming. Senders see
// ErrClosed by the time Incoming is closed.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		c.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		frameType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
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

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump encodes outgoing messages and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			data, err := c.codec.Marshal(message)
			if err != nil {
				c.logger.Error("encode failed", "type", message.Type, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SendMessage queues msg for the hub. It fails once the client is closed.
func (c *Client) SendMessage(msg *protocol.Message) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming delivers decoded hub messages. It is closed when the connection
// drops.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

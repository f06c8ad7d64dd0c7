package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conduit-lang/taskprovider/internal/uri"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send small control frames
	maxMessageSize = 4 * 1024
)

// Client is one websocket connection and its subscriptions
type Client struct {
	ID string

	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	subsMu        sync.RWMutex
	subscriptions []uri.Identifier

	heartbeatMu   sync.RWMutex
	lastHeartbeat time.Time

	closed atomic.Bool
}

// NewClient creates a client watching the given identifiers
func NewClient(id string, conn *websocket.Conn, hub *Hub, watch ...uri.Identifier) *Client {
	ctx, cancel := context.WithCancel(hub.ctx)

	c := &Client{
		ID:            id,
		conn:          conn,
		hub:           hub,
		send:          make(chan []byte, 256),
		ctx:           ctx,
		cancel:        cancel,
		lastHeartbeat: time.Now(),
	}
	for _, w := range watch {
		c.Subscribe(w)
	}
	return c
}

// Subscribe adds id to the client's subscriptions
func (c *Client) Subscribe(id uri.Identifier) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for _, existing := range c.subscriptions {
		if existing.Equal(id) {
			return
		}
	}
	c.subscriptions = append(c.subscriptions, id)
}

// Unsubscribe removes id and reports whether it was present
func (c *Client) Unsubscribe(id uri.Identifier) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for i, existing := range c.subscriptions {
		if existing.Equal(id) {
			c.subscriptions = append(c.subscriptions[:i], c.subscriptions[i+1:]...)
			return true
		}
	}
	return false
}

// Watches reports whether a change to id concerns this client
func (c *Client) Watches(id uri.Identifier) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	for _, s := range c.subscriptions {
		if s.Covers(id) {
			return true
		}
	}
	return false
}

// Subscriptions returns a copy of the current subscriptions
func (c *Client) Subscriptions() []uri.Identifier {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	out := make([]uri.Identifier, len(c.subscriptions))
	copy(out, c.subscriptions)
	return out
}

// ReadPump reads control frames until the connection closes
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.updateHeartbeat()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		c.updateHeartbeat()

		if err := c.handle(data); err != nil {
			c.SendError(err.Error())
		}
	}
}

// handle applies a client control frame
func (c *Client) handle(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}

	switch msg.Type {
	case TypePing:
		return c.Send(&Message{Type: TypePong})

	case TypeSubscribe, TypeUnsubscribe:
		var payload URIPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return fmt.Errorf("malformed %s payload: %w", msg.Type, err)
		}
		id, err := uri.Parse(payload.URI)
		if err != nil {
			return err
		}

		if msg.Type == TypeSubscribe {
			c.Subscribe(id)
			return c.Send(&Message{Type: TypeSubscribed, Payload: URIPayload{URI: id.String()}})
		}
		c.Unsubscribe(id)
		return c.Send(&Message{Type: TypeUnsubscribed, Payload: URIPayload{URI: id.String()}})

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// Send queues a message for the client
func (c *Client) Send(message *Message) (err error) {
	// the hub may close send between the check and the write
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client closed")
		}
	}()

	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	data, err := marshalMessage(message)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return context.Canceled
	default:
		return fmt.Errorf("send channel full")
	}
}

// SendError sends an error frame, ignoring delivery failures
func (c *Client) SendError(errorMsg string) {
	_ = c.Send(&Message{
		Type:    TypeError,
		Payload: map[string]string{"message": errorMsg},
	})
}

func (c *Client) updateHeartbeat() {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	c.lastHeartbeat = time.Now()
}

// LastHeartbeat returns when the client was last heard from
func (c *Client) LastHeartbeat() time.Time {
	c.heartbeatMu.RLock()
	defer c.heartbeatMu.RUnlock()
	return c.lastHeartbeat
}

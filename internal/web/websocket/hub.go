// Package websocket streams change notifications to websocket clients. The
// Hub is a notify observer; each client subscribes to one or more identifiers
// and receives a frame for every change at or beneath them.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/conduit-lang/taskprovider/internal/uri"
	"go.uber.org/zap"
)

// Hub tracks connected clients and fans changes out to their subscriptions
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client

	logger *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
}

// NewHub creates a hub. Call Run to start it.
func NewHub(ctx context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	hubCtx, cancel := context.WithCancel(ctx)

	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		logger:     logger,
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

// Run processes registrations until the hub is shut down
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	cleanupTicker := time.NewTicker(30 * time.Second)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.cleanup()
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			h.logger.Debug("client registered", zap.String("client", client.ID), zap.Int("total", h.ClientCount()))

		case client := <-h.unregister:
			h.remove(client)

		case <-cleanupTicker.C:
			h.cleanupStaleConnections()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closed.Store(true)
		close(client.send)
	}
	h.clientsMu.Unlock()

	h.logger.Debug("client unregistered", zap.String("client", client.ID), zap.Int("total", h.ClientCount()))
}

// OnChange sends a change frame to every client subscribed to id or one of
// its ancestors. Slow clients whose buffers are full miss the frame.
func (h *Hub) OnChange(ctx context.Context, id uri.Identifier) error {
	data, err := marshalMessage(&Message{
		Type:    TypeChange,
		Payload: URIPayload{URI: id.String()},
	})
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for client := range h.clients {
		if !client.Watches(id) {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("dropping change for slow client",
				zap.String("client", client.ID),
				zap.String("uri", id.String()),
			)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// cleanup closes every client connection
func (h *Hub) cleanup() {
	h.clientsMu.Lock()
	for client := range h.clients {
		client.closed.Store(true)
		if client.conn != nil {
			client.conn.Close()
		}
	}
	h.clients = make(map[*Client]bool)
	h.clientsMu.Unlock()
}

// cleanupStaleConnections drops clients that stopped answering pings
func (h *Hub) cleanupStaleConnections() {
	h.clientsMu.RLock()
	var stale []*Client
	for client := range h.clients {
		if time.Since(client.LastHeartbeat()) > 90*time.Second {
			stale = append(stale, client)
		}
	}
	h.clientsMu.RUnlock()

	for _, client := range stale {
		h.logger.Info("removing stale client", zap.String("client", client.ID))
		h.remove(client)
	}
}

// Shutdown disconnects every client and stops Run
func (h *Hub) Shutdown() {
	h.shutdown.Do(func() {
		h.cancel()
		h.wg.Wait()
	})
}

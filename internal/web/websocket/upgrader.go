package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/conduit-lang/taskprovider/internal/uri"
	"github.com/conduit-lang/taskprovider/internal/web/response"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds websocket settings
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin decides whether a cross-origin upgrade is allowed
	CheckOrigin func(r *http.Request) bool

	// DefaultWatch is subscribed when the request names no uri
	DefaultWatch uri.Identifier
}

// DefaultConfig returns default websocket settings watching root. Only
// same-origin browser connections are accepted.
func DefaultConfig(root uri.Identifier) *Config {
	return &Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     AllowOrigins(),
		DefaultWatch:    root,
	}
}

// AllowOrigins accepts requests without an Origin header, same-origin
// requests, and requests from one of allowed. "*" allows every origin.
// Origins compare case-insensitively as scheme://host[:port].
func AllowOrigins(allowed ...string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		if set[strings.ToLower(origin)] {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// Upgrader upgrades HTTP requests to change-stream connections
type Upgrader struct {
	config   *Config
	upgrader *websocket.Upgrader
	hub      *Hub
}

// NewUpgrader creates an upgrader registering clients with hub
func NewUpgrader(config *Config, hub *Hub) *Upgrader {
	if config == nil {
		config = DefaultConfig(uri.Identifier{})
	}

	return &Upgrader{
		config: config,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		hub: hub,
	}
}

// ServeHTTP validates the requested subscriptions, upgrades the connection and
// starts the client pumps. Each uri query parameter adds a subscription.
func (u *Upgrader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var watch []uri.Identifier
	for _, raw := range r.URL.Query()["uri"] {
		id, err := uri.Parse(raw)
		if err != nil {
			response.RenderBadRequest(w, err.Error())
			return
		}
		watch = append(watch, id)
	}
	if len(watch) == 0 && !u.config.DefaultWatch.IsZero() {
		watch = append(watch, u.config.DefaultWatch)
	}

	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		u.hub.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), conn, u.hub, watch...)
	u.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

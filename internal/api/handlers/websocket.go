package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lolerskatez/jellysso-sub000/internal/cache"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Per-client queue; a client that falls this far behind is dropped
	clientBuffer = 256
)

// WebSocketMessage represents a message sent to clients
type WebSocketMessage struct {
	Type    string `json:"type"` // "hello", "event"
	Payload any    `json:"payload"`
}

// EventPayload is a cache event as seen by clients.
type EventPayload struct {
	Kind  cache.EventKind `json:"kind"`
	Cache string          `json:"cache"`
	Key   string          `json:"key,omitempty"`
	Error string          `json:"error,omitempty"`
	Time  time.Time       `json:"time"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	filter string // cache name, empty for all
}

func (c *Client) wants(cacheName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter == "" || c.filter == cacheName
}

// EventHub fans cache events out to connected WebSocket clients.
type EventHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan cache.Event

	upgrader websocket.Upgrader
	names    func() []string
	done     chan struct{}
	mu       sync.RWMutex
}

// NewEventHub creates a hub. checkOrigin may be nil to accept only
// same-origin upgrades; names lists the caches announced on connect.
func NewEventHub(checkOrigin func(*http.Request) bool, names func() []string) *EventHub {
	if names == nil {
		names = func() []string { return nil }
	}
	return &EventHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan cache.Event, clientBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		names: names,
		done:  make(chan struct{}),
	}
}

// Publish queues ev for delivery. It never blocks: cache listeners run on
// the goroutine of the cache operation, so events are dropped when the
// queue is full.
func (h *EventHub) Publish(ev cache.Event) {
	select {
	case h.broadcast <- ev:
	default:
		logger.Debug("WebSocket event queue full, dropping event", "cache", ev.Cache, "kind", string(ev.Kind))
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main loop. All clients are disconnected when ctx ends.
func (h *EventHub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()
			logger.Info("WebSocket client connected", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				logger.Info("WebSocket client disconnected", "total_clients", len(h.clients))
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *EventHub) deliver(ev cache.Event) {
	payload := EventPayload{Kind: ev.Kind, Cache: ev.Cache, Key: ev.Key, Time: ev.Time}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	data, err := json.Marshal(WebSocketMessage{Type: "event", Payload: payload})
	if err != nil {
		logger.Error("Failed to marshal WebSocket event", "error", err)
		return
	}

	sent := 0
	h.mu.Lock()
	for client := range h.clients {
		if !client.wants(ev.Cache) {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			// Client's send buffer is full, close the connection
			h.drop(client)
		}
	}
	h.mu.Unlock()
	metrics.WebSocketMessagesSent.Add(float64(sent))
}

// drop must be called with h.mu held.
func (h *EventHub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	metrics.WebSocketConnections.Dec()
}

func (h *EventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.drop(client)
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket unexpected close", "error", err)
			}
			return
		}

		// {"type":"subscribe","cache":"jellyfin"} narrows the stream; an empty cache widens it again.
		var msg struct {
			Type  string `json:"type"`
			Cache string `json:"cache"`
		}
		if err := json.Unmarshal(message, &msg); err == nil && msg.Type == "subscribe" {
			c.mu.Lock()
			c.filter = msg.Cache
			c.mu.Unlock()
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
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
				// Hub closed the channel
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

// HandleWebSocket upgrades the connection and streams cache events.
// GET /api/admin/caches/events[?cache=name]
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error.
		logger.WarnContext(r.Context(), "Failed to upgrade to WebSocket", "error", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		filter: r.URL.Query().Get("cache"),
	}

	hello, err := json.Marshal(WebSocketMessage{
		Type:    "hello",
		Payload: map[string]any{"caches": h.names(), "filter": client.filter},
	})
	if err == nil {
		client.send <- hello
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

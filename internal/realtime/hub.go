// Package realtime streams reservation lifecycle events to shop dashboards
// over WebSocket. A client subscribes to one shop's stream; the reservation
// service publishes into the hub and every connected client of that shop
// sees creations and status transitions without polling.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/modubeauty/modu/internal/metrics"
	"github.com/modubeauty/modu/internal/reservation"
)

// normalCloseCodes are WebSocket close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// MaxClients is the maximum number of concurrent WebSocket connections.
const MaxClients = 10000

// Subscription narrows which reservation events a client receives.
// An empty subscription receives everything for its shop.
type Subscription struct {
	Types    []string `json:"types"`    // reservation.created | reservation.transitioned
	Statuses []string `json:"statuses"` // only transitions into these statuses
}

// Client is one WebSocket connection, bound to a single shop's stream.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	shopID string
	send   chan []byte
	mu     sync.RWMutex
	sub    Subscription
}

type shopEvent struct {
	shopID string
	event  reservation.Event
}

// Hub fans reservation events out to per-shop WebSocket clients. It
// implements the reservation service's Publisher.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan shopEvent
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

var _ reservation.Publisher = (*Hub)(nil)

// NewHub creates a WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan shopEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("realtime hub shutting down, closing client connections")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send) // writePump sends CloseMessage on closed channel
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("realtime hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalClients.Add(1)
			if current := int64(len(h.clients)); current > h.peakClients.Load() {
				h.peakClients.Store(current)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("stream client connected", "shop_id", client.shopID, "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("stream client disconnected", "shop_id", client.shopID, "total", n)

		case ev := <-h.broadcast:
			h.totalEvents.Add(1)
			payload, err := json.Marshal(ev.event)
			if err != nil {
				h.logger.Error("serialize stream event failed", "error", err)
				continue
			}
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				if client.shopID == ev.shopID && client.wants(ev.event) {
					select {
					case client.send <- payload:
					default:
						slow = append(slow, client)
					}
				}
			}
			h.mu.RUnlock()
			// Remove slow clients under write lock.
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// wants reports whether the event passes the client's subscription filter.
func (c *Client) wants(ev reservation.Event) bool {
	c.mu.RLock()
	sub := c.sub
	c.mu.RUnlock()

	if len(sub.Types) > 0 {
		matched := false
		for _, t := range sub.Types {
			if t == ev.Type {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(sub.Statuses) > 0 && ev.Reservation != nil {
		matched := false
		for _, s := range sub.Statuses {
			if reservation.Status(s) == ev.Reservation.Status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Publish fans one reservation event out to the shop's stream clients.
// Non-blocking: a full hub drops the event rather than stalling the
// reservation write path.
func (h *Hub) Publish(shopID string, event reservation.Event) {
	select {
	case h.broadcast <- shopEvent{shopID: shopID, event: event}:
	default:
		h.logger.Warn("stream channel full, dropping event", "shop_id", shopID)
	}
}

// Stats returns hub statistics for the admin surface.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"connectedClients": len(h.clients),
		"totalEvents":      h.totalEvents.Load(),
		"totalClients":     h.totalClients.Load(),
		"peakClients":      h.peakClients.Load(),
	}
}

// RegisterShopRoutes sets up the stream route on the gated /shops/:shopId
// group, so tenancy checks run before the upgrade.
func (h *Hub) RegisterShopRoutes(r *gin.RouterGroup) {
	r.GET("/stream", h.Stream)
}

// Stream handles GET /api/shops/:shopId/stream
func (h *Hub) Stream(c *gin.Context) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		c.String(http.StatusServiceUnavailable, "server shutting down")
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		c.String(http.StatusServiceUnavailable, "too many connections")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		shopID: c.Param("shopId"),
		send:   make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket (subscription updates, pongs).
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

// writePump writes messages to the WebSocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}

// Package websocket streams live price updates to subscribed clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongTimeout    = 60 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

// PriceMessage is the outbound frame for one price update.
type PriceMessage struct {
	Type      string  `json:"type"`
	Pool      string  `json:"pool"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// clientCommand is the inbound subscribe/unsubscribe frame.
type clientCommand struct {
	Type string `json:"type"`
	Pool string `json:"pool"`
}

// Hub fans price updates out to websocket clients by pool subscription.
type Hub struct {
	logger   *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// NewHub creates a new hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger.WithField("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]bool),
	}
}

// Run blocks until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
	}
	h.clients = make(map[*client]bool)
}

// ConnectionCount returns the number of connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastPrice sends a price update to every client subscribed to the pool.
func (h *Hub) BroadcastPrice(pool string, price float64, ts int64) {
	data, err := json.Marshal(PriceMessage{Type: "price", Pool: pool, Price: price, Timestamp: ts})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(pool) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// slow client, drop the frame rather than stall the feed
		}
	}
}

// HandleWebSocket upgrades the request and serves the client until it hangs up.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go c.writePump()
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		if h.clients[c] {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "subscribe":
			c.setSubscribed(cmd.Pool, true)
		case "unsubscribe":
			c.setSubscribed(cmd.Pool, false)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) subscribed(pool string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[pool]
}

func (c *client) setSubscribed(pool string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.subs[pool] = true
	} else {
		delete(c.subs, pool)
	}
}

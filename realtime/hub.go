// Package realtime fans match events out to websocket subscribers grouped by
// tenant channel.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	channel string

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, channel string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		channel: channel,
	}
}

func (c *Client) Channel() string { return c.channel }

// enqueue never blocks; a full buffer drops the message for this client.
func (c *Client) enqueue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

// Hub tracks subscribers per channel. Channel names are tenant slugs.
type Hub struct {
	logger     *slog.Logger
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		channels:   make(map[string]map[*Client]struct{}),
	}
}

// Run processes registrations until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			members, ok := h.channels[client.channel]
			if !ok {
				members = make(map[*Client]struct{})
				h.channels[client.channel] = members
			}
			members[client] = struct{}{}
			n := len(members)
			h.mu.Unlock()
			subscribers.Inc()
			h.logger.Debug("client joined channel", "channel", client.channel, "clients", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if members, ok := h.channels[client.channel]; ok {
				if _, ok := members[client]; ok {
					delete(members, client)
					client.closeSend()
					subscribers.Dec()
					if len(members) == 0 {
						delete(h.channels, client.channel)
					}
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client left channel", "channel", client.channel)

		case <-ctx.Done():
			h.mu.Lock()
			for channel, members := range h.channels {
				for client := range members {
					client.closeSend()
					subscribers.Dec()
				}
				delete(h.channels, channel)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.closeSend()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastToChannel delivers message to every client of channel and returns
// how many accepted it. Slow clients are skipped.
func (h *Hub) BroadcastToChannel(channel string, message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.channels[channel]
	if !ok {
		return 0
	}
	delivered := 0
	for client := range members {
		if client.enqueue(message) {
			delivered++
			continue
		}
		droppedMessages.Inc()
		h.logger.Warn("client send buffer full, message skipped", "channel", channel)
	}
	return delivered
}

func (h *Hub) ClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// ReadPump only services control frames; client messages are ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket closed unexpectedly", "channel", c.channel, "error", err)
			}
			return
		}
	}
}

// WritePump sends one websocket frame per event and pings on idle.
func (c *Client) WritePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("websocket write failed", "channel", c.channel, "error", err)
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

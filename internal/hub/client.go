package hub

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
	"time"

	"gamehub/backend/internal/bus"
	"gamehub/backend/internal/container"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// ClientFrame is what connected clients send: topic join/leave commands.
type ClientFrame struct {
	Action string `json:"action"` // "join" or "leave"
	Topic  string `json:"topic"`
}

// Client is one websocket connection. Its subscription set and dedup cache
// are owned by the connection and never shared across connections.
type Client struct {
	ID     uuid.UUID
	UserID uint
	Conn   *websocket.Conn
	Send   chan []byte

	hub *Hub

	mu         sync.Mutex
	closed     bool // set before Send is closed; no enqueue may happen after
	subs       map[string]bus.Subscription
	lastUpdate map[string][]byte // per-topic payload of the last `updated` push
}

func NewClient(h *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		ID:         uuid.New(),
		UserID:     userID,
		Conn:       conn,
		Send:       make(chan []byte, sendBuffer),
		hub:        h,
		subs:       make(map[string]bus.Subscription),
		lastUpdate: make(map[string][]byte),
	}
}

// deliver enqueues one event for this connection. Successive `updated`
// events with byte-identical payloads on the same topic are suppressed.
// Safe to call from any subscription goroutine, including ones still
// draining buffered events while the connection is torn down.
func (c *Client) deliver(ev bus.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	// The enqueue happens under c.mu so it cannot race closeSubscriptions,
	// which marks the client closed under the same lock before Send is closed.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if ev.Type == container.EventUpdated {
		if prev, ok := c.lastUpdate[ev.Topic]; ok && bytes.Equal(prev, ev.Payload) {
			return
		}
		c.lastUpdate[ev.Topic] = append([]byte(nil), ev.Payload...)
	}
	// Non-blocking: a slow client loses events, the full-state push on
	// rejoin compensates.
	select {
	case c.Send <- data:
	default:
	}
}

func (c *Client) sendError(topic, message string) {
	ev, ok := bus.NewEvent(topic, "error", map[string]string{"error": message})
	if !ok {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// closeSubscriptions tears down every subscription and marks the client
// closed. Callers may close Send only after this returns.
func (c *Client) closeSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for topic, sub := range c.subs {
		sub.Close()
		delete(c.subs, topic)
	}
	c.lastUpdate = make(map[string][]byte)
}

// ReadPump consumes join/leave frames until the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame ClientFrame
		if err := c.Conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("hub: read error on client %s: %v", c.ID, err)
			}
			break
		}

		switch frame.Action {
		case "join":
			if err := c.hub.JoinTopic(c, frame.Topic); err != nil {
				c.sendError(frame.Topic, err.Error())
			}
		case "leave":
			c.hub.LeaveTopic(c, frame.Topic)
		default:
			c.sendError(frame.Topic, "unknown action")
		}
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
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
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

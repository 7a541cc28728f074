package hub

import (
	"context"
	"log"
	"sync"

	"gamehub/backend/internal/bus"

	"github.com/google/uuid"
)

// Backend is what the gateway needs from the rest of the application:
// topic authorization, initial state for a freshly joined topic, and a
// presence callback fired on a user's first connect / last disconnect.
type Backend interface {
	AuthorizeTopic(userID uint, topic string) error
	SnapshotEvents(userID uint, topic string) []bus.Event
	PresenceChanged(userID uint, online bool)
}

// Hub tracks active connections and their per-user grouping. Topic
// subscriptions live on the clients themselves; all cross-connection
// traffic flows through the bus.
type Hub struct {
	bus     bus.Bus
	backend Backend

	clients     map[uuid.UUID]*Client
	userClients map[uint]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(b bus.Bus, backend Backend) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		bus:         b,
		backend:     backend,
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[uint]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run processes connection lifecycle events until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Stop shuts the hub down and closes every connection.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		client.closeSubscriptions()
		close(client.Send)
		client.Conn.Close()
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.userClients = make(map[uint]map[uuid.UUID]*Client)
}

func (h *Hub) Register(client *Client)   { h.register <- client }
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	first := false
	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
		first = true
	}
	h.userClients[client.UserID][client.ID] = client
	h.mu.Unlock()

	log.Printf("hub: client %s connected (user %d)", client.ID, client.UserID)
	if first {
		h.backend.PresenceChanged(client.UserID, true)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	last := false
	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, client.UserID)
			last = true
		}
	}
	h.mu.Unlock()

	client.closeSubscriptions()
	close(client.Send)

	log.Printf("hub: client %s disconnected (user %d)", client.ID, client.UserID)
	if last {
		h.backend.PresenceChanged(client.UserID, false)
	}
}

// JoinTopic authorizes and subscribes the client to a topic, replacing any
// stale subscription for the same topic first so a reconnecting client never
// receives duplicate deliveries. Initial state is pushed after subscribing.
func (h *Hub) JoinTopic(c *Client, topic string) error {
	if err := h.backend.AuthorizeTopic(c.UserID, topic); err != nil {
		return err
	}

	sub, err := h.bus.Subscribe(topic)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Close()
		return nil
	}
	if old, ok := c.subs[topic]; ok {
		old.Close()
	}
	c.subs[topic] = sub
	c.mu.Unlock()

	go func() {
		for ev := range sub.C() {
			c.deliver(ev)
		}
	}()

	for _, ev := range h.backend.SnapshotEvents(c.UserID, topic) {
		c.deliver(ev)
	}
	return nil
}

// LeaveTopic drops the client's subscription for a topic, if any.
func (h *Hub) LeaveTopic(c *Client, topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[topic]; ok {
		sub.Close()
		delete(c.subs, topic)
		delete(c.lastUpdate, topic)
	}
}

// OnlineUsers lists users with at least one live connection.
func (h *Hub) OnlineUsers() []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]uint, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}

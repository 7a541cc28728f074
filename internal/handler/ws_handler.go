package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gamehub/backend/internal/bus"
	"gamehub/backend/internal/container"
	"gamehub/backend/internal/hub"
	"gamehub/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	errUnknownTopic = errors.New("unknown_topic")
	errUnauthorized = errors.New("unauthorized")
	errNotAMember   = errors.New("not_a_member")
)

const backendTimeout = 3 * time.Second

// GatewayBackend adapts the container engine to the gateway: it decides who
// may subscribe to which topic, produces the initial state pushed on join,
// and reports presence transitions.
type GatewayBackend struct {
	svc *container.Service
}

func NewGatewayBackend(svc *container.Service) *GatewayBackend {
	return &GatewayBackend{svc: svc}
}

// splitTopic parses "<kind>:<id>" topics. Global topics have no colon and
// return ok=false.
func splitTopic(topic string) (kind string, id uint, ok bool) {
	kind, rest, found := strings.Cut(topic, ":")
	if !found {
		return "", 0, false
	}
	parsed, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return "", 0, false
	}
	return kind, uint(parsed), true
}

// AuthorizeTopic permits global listing topics for everyone, user topics for
// their owner only, and container topics for current members only.
func (g *GatewayBackend) AuthorizeTopic(userID uint, topic string) error {
	switch topic {
	case "lobbies", "parties", "groups":
		return nil
	}

	kind, id, ok := splitTopic(topic)
	if !ok {
		return errUnknownTopic
	}
	switch kind {
	case "user":
		if id != userID {
			return errUnauthorized
		}
		return nil
	case string(models.KindLobby), string(models.KindParty), string(models.KindGroup):
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		member, err := g.svc.IsMember(ctx, userID, id)
		if err != nil {
			return err
		}
		if !member {
			return errNotAMember
		}
		return nil
	default:
		return errUnknownTopic
	}
}

// SnapshotEvents builds the full-state push for a freshly joined topic: the
// current container projection, or the user's queued notifications. Global
// topics have no snapshot.
func (g *GatewayBackend) SnapshotEvents(userID uint, topic string) []bus.Event {
	kind, id, ok := splitTopic(topic)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()

	if kind == "user" {
		items, err := g.svc.UndeliveredNotifications(ctx, userID)
		if err != nil {
			return nil
		}
		events := make([]bus.Event, 0, len(items))
		for _, n := range items {
			ev, ok := bus.NewEvent(topic, container.EventNotification, gin.H{
				"id":      n.ID,
				"kind":    n.Kind,
				"payload": n.Payload,
			})
			if ok {
				events = append(events, ev)
			}
		}
		return events
	}

	p, err := g.svc.Snapshot(ctx, id)
	if err != nil {
		return nil
	}
	ev, ok := bus.NewEvent(topic, container.EventUpdated, p)
	if !ok {
		return nil
	}
	return []bus.Event{ev}
}

// PresenceChanged is called on a user's first connect and last disconnect.
func (g *GatewayBackend) PresenceChanged(userID uint, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	g.svc.SetOnline(ctx, userID, online)
}

// WebSocketHandler upgrades authenticated requests into gateway connections.
type WebSocketHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(h *hub.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket godoc
// @Summary      Open the realtime gateway connection
// @Description  Upgrades to WebSocket. Clients then send {"action":"join","topic":"lobby:42"} frames to subscribe.
// @Tags         gateway
// @Security     BearerAuth
// @Success      101
// @Failure      401 {object} ErrorResponse
// @Router       /ws [get]
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := hub.NewClient(h.hub, conn, userID.(uint))
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

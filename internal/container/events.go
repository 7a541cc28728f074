package container

import (
	"context"
	"fmt"
	"log"
	"time"

	"gamehub/backend/internal/bus"
	"gamehub/backend/internal/models"
)

// Event types carried over the fanout topics.
const (
	EventMemberJoined    = "member_joined"
	EventMemberLeft      = "member_left"
	EventMemberKicked    = "member_kicked"
	EventUpdated         = "updated"
	EventHostChanged     = "host_changed"
	EventDeleted         = "deleted"
	EventJoinRequest     = "join_request"
	EventNotification    = "notification"
	EventPresenceChanged = "presence_changed"
)

var globalTopics = map[models.ContainerKind]string{
	models.KindLobby: "lobbies",
	models.KindParty: "parties",
	models.KindGroup: "groups",
}

// Topic is the per-container fanout topic, e.g. "lobby:42".
func Topic(kind models.ContainerKind, id uint) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// GlobalTopic is the list-level topic for a kind ("lobbies", "parties", "groups").
func GlobalTopic(kind models.ContainerKind) string {
	return globalTopics[kind]
}

// UserTopic carries presence and notification events for one user.
func UserTopic(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// MemberInfo is the membership slice of a container projection.
type MemberInfo struct {
	UserID   uint              `json:"user_id"`
	Nickname string            `json:"nickname"`
	Role     models.MemberRole `json:"role"`
	JoinedAt time.Time         `json:"joined_at"`
}

// Projection is the full serializable container state used for `updated`
// events and for the gateway's full-state push on topic join. It carries no
// timestamps or other volatile fields: subscribers suppress consecutive
// `updated` events by byte equality, so two writes that leave the container
// in the same state must serialize identically.
type Projection struct {
	ID          uint                 `json:"id"`
	Kind        models.ContainerKind `json:"kind"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	GameID      *uint                `json:"game_id,omitempty"`
	HostID      *uint                `json:"host_id,omitempty"`
	MaxMembers  int                  `json:"max_members"`
	MemberCount int                  `json:"member_count"`
	Hidden      bool                 `json:"hidden"`
	Locked      bool                 `json:"locked"`
	Hostless    bool                 `json:"hostless,omitempty"`
	GroupType   models.GroupType     `json:"group_type,omitempty"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
	Members     []MemberInfo         `json:"members,omitempty"`
}

// Project builds the wire projection for a container. Memberships must be
// preloaded if members are expected in the payload.
func Project(c *models.Container) Projection {
	p := Projection{
		ID:          c.ID,
		Kind:        c.Kind,
		Title:       c.Title,
		Description: c.Description,
		GameID:      c.GameID,
		HostID:      c.HostID,
		MaxMembers:  c.MaxMembers,
		MemberCount: c.MemberCount,
		Hidden:      c.Hidden,
		Locked:      c.Locked(),
		Hostless:    c.Hostless,
		GroupType:   c.GroupType,
		Metadata:    c.Metadata,
	}
	for _, m := range c.Memberships {
		p.Members = append(p.Members, MemberInfo{
			UserID:   m.UserID,
			Nickname: m.User.Nickname,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}
	return p
}

const publishTimeout = 2 * time.Second

// publish sends one event to the container topic and, unless the container
// is hidden, to the list-level topic for its kind. Runs strictly after the
// mutating transaction has committed; failures are logged, never surfaced.
func (s *Service) publish(c *models.Container, eventType string, payload interface{}) {
	ev, ok := bus.NewEvent(Topic(c.Kind, c.ID), eventType, payload)
	if !ok {
		log.Printf("container: failed to serialize %s event for %s:%d", eventType, c.Kind, c.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := s.bus.Publish(ctx, ev); err != nil {
		log.Printf("container: publish %s to %s failed: %v", eventType, ev.Topic, err)
	}

	// Hidden containers never leak onto the list-level topics.
	if c.Hidden || (c.Kind == models.KindGroup && c.GroupType == models.GroupHidden) {
		return
	}
	ev.Topic = GlobalTopic(c.Kind)
	if err := s.bus.Publish(ctx, ev); err != nil {
		log.Printf("container: publish %s to %s failed: %v", eventType, ev.Topic, err)
	}
}

// publishUser sends an event to a single user topic.
func (s *Service) publishUser(userID uint, eventType string, payload interface{}) {
	ev, ok := bus.NewEvent(UserTopic(userID), eventType, payload)
	if !ok {
		log.Printf("container: failed to serialize %s event for user %d", eventType, userID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.bus.Publish(ctx, ev); err != nil {
		log.Printf("container: publish %s to %s failed: %v", eventType, ev.Topic, err)
	}
}

package container

import (
	"context"
	"errors"
	"time"

	"gamehub/backend/internal/bus"
	"gamehub/backend/internal/models"

	"gorm.io/gorm"
)

// Service is the container membership engine: durable container/membership
// state, capacity and host invariants, lifecycle hooks and event fanout.
type Service struct {
	db    *gorm.DB
	hooks *Hooks
	bus   bus.Bus
}

// NewService wires the engine. A nil hooks registry behaves as pass-through.
func NewService(db *gorm.DB, hooks *Hooks, b bus.Bus) *Service {
	if hooks == nil {
		hooks = NewHooks()
	}
	return &Service{db: db, hooks: hooks, bus: b}
}

// CreateAttrs are the writable fields at container creation.
type CreateAttrs struct {
	Title       string
	Description string
	GameID      *uint
	MaxMembers  int
	Hidden      bool
	Hostless    bool
	GroupType   models.GroupType
	Password    string
	Metadata    map[string]string
}

// UpdateAttrs are the writable fields on update; nil means unchanged.
type UpdateAttrs struct {
	Title       *string
	Description *string
	GameID      *uint
	MaxMembers  *int
	Hidden      *bool
	Password    *string
	Metadata    map[string]string
}

// ListFilter selects and pages containers of one kind.
type ListFilter struct {
	Kind          models.ContainerKind
	Title         string // substring match, case-insensitive
	MetaKey       string
	MetaValue     string
	GameID        *uint
	IncludeHidden bool // privileged listings only
	Page          int
	PageSize      int
}

// ListResult is one page of containers plus the unpaged total.
type ListResult struct {
	Items      []models.Container
	TotalCount int64
}

// Get loads a container with its host, game and member associations.
func (s *Service) Get(ctx context.Context, id uint) (*models.Container, error) {
	var c models.Container
	err := s.db.WithContext(ctx).
		Preload("Host").
		Preload("Game").
		Preload("Memberships", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC, id ASC")
		}).
		Preload("Memberships.User").
		First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Snapshot returns the full-state projection the gateway pushes on join.
func (s *Service) Snapshot(ctx context.Context, id uint) (Projection, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Projection{}, err
	}
	return Project(c), nil
}

// IsMember reports whether the user currently holds a membership.
func (s *Service) IsMember(ctx context.Context, userID, containerID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Membership{}).
		Where("container_id = ? AND user_id = ?", containerID, userID).
		Count(&count).Error
	return count > 0, err
}

// membershipOf loads the membership row inside tx, or ErrNotMember.
func membershipOf(tx *gorm.DB, containerID, userID uint) (*models.Membership, error) {
	var m models.Membership
	err := tx.Where("container_id = ? AND user_id = ?", containerID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// authorizePrivileged checks the actor is the container's privileged member:
// the host for lobbies/parties, an admin member for groups. Hostless lobbies
// have no privileged member on this path.
func (s *Service) authorizePrivileged(ctx context.Context, c *models.Container, actorID uint) error {
	if c.Kind == models.KindGroup {
		var m models.Membership
		err := s.db.WithContext(ctx).
			Where("container_id = ? AND user_id = ?", c.ID, actorID).
			First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && m.Role != models.RoleAdmin) {
			return ErrNotAdmin
		}
		return err
	}
	if c.HostID == nil || *c.HostID != actorID {
		return ErrNotHost
	}
	return nil
}

// UndeliveredNotifications returns the user's queued notifications and marks
// them delivered. Called by the gateway when a user topic is (re)joined.
func (s *Service) UndeliveredNotifications(ctx context.Context, userID uint) ([]models.Notification, error) {
	var items []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND delivered_at IS NULL", userID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		ids := make([]uint, len(items))
		for i, n := range items {
			ids[i] = n.ID
		}
		now := time.Now()
		if err := s.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id IN ?", ids).
			Update("delivered_at", now).Error; err != nil {
			return nil, err
		}
	}
	return items, nil
}

// Notify queues a notification row and pushes it to the user topic.
func (s *Service) Notify(ctx context.Context, userID uint, kind models.NotificationKind, payload map[string]string) {
	n := models.Notification{UserID: userID, Kind: kind, Payload: payload}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return
	}
	s.publishUser(userID, EventNotification, map[string]interface{}{
		"id":      n.ID,
		"kind":    n.Kind,
		"payload": n.Payload,
	})
}

// SetOnline flips the user's presence flag and fans a presence event out to
// every accepted relation's user topic.
func (s *Service) SetOnline(ctx context.Context, userID uint, online bool) error {
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("online", online).Error; err != nil {
		return err
	}

	var rels []models.UserRelation
	err := s.db.WithContext(ctx).
		Where("(from_user_id = ? OR to_user_id = ?) AND status = ?", userID, userID, models.StatusAccepted).
		Find(&rels).Error
	if err != nil {
		return err
	}
	peers := make([]uint, 0, len(rels))
	for _, r := range rels {
		if r.FromUserID == userID {
			peers = append(peers, r.ToUserID)
		} else {
			peers = append(peers, r.FromUserID)
		}
	}

	payload := map[string]interface{}{"user_id": userID, "online": online}
	for _, peer := range peers {
		s.publishUser(peer, EventPresenceChanged, payload)
	}
	return nil
}

package container

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamehub/backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func validateCreate(kind models.ContainerKind, attrs CreateAttrs) error {
	if strings.TrimSpace(attrs.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidAttrs)
	}
	if attrs.MaxMembers < 1 {
		return fmt.Errorf("%w: max_members must be positive", ErrInvalidAttrs)
	}
	if attrs.Hostless && kind != models.KindLobby {
		return fmt.Errorf("%w: only lobbies can be hostless", ErrInvalidAttrs)
	}
	if kind != models.KindGroup && attrs.GroupType != "" {
		return fmt.Errorf("%w: type is a group attribute", ErrInvalidAttrs)
	}
	if kind == models.KindGroup {
		switch attrs.GroupType {
		case "", models.GroupPublic, models.GroupPrivate, models.GroupHidden:
		default:
			return fmt.Errorf("%w: unknown group type %q", ErrInvalidAttrs, attrs.GroupType)
		}
	}
	return nil
}

// CreateContainer creates a container and, unless it is hostless, admits the
// creator as its first privileged member in the same transaction.
func (s *Service) CreateContainer(ctx context.Context, actorID uint, kind models.ContainerKind, attrs CreateAttrs) (*models.Container, error) {
	if err := validateCreate(kind, attrs); err != nil {
		return nil, err
	}

	attrs, err := s.hooks.beforeCreate(actorID, kind, attrs)
	if err != nil {
		return nil, err
	}
	// Hooks may rewrite attrs; hold them to the same rules.
	if err := validateCreate(kind, attrs); err != nil {
		return nil, err
	}

	var hash string
	if attrs.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hash = string(hashed)
	}

	c := &models.Container{
		Kind:         kind,
		Title:        strings.TrimSpace(attrs.Title),
		Description:  attrs.Description,
		GameID:       attrs.GameID,
		MaxMembers:   attrs.MaxMembers,
		Hidden:       attrs.Hidden,
		Hostless:     attrs.Hostless,
		GroupType:    attrs.GroupType,
		PasswordHash: hash,
		Metadata:     attrs.Metadata,
	}
	if kind == models.KindGroup {
		if c.GroupType == "" {
			c.GroupType = models.GroupPublic
		}
		if c.GroupType == models.GroupHidden {
			c.Hidden = true
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.Hostless {
			return tx.Create(c).Error
		}

		var creator models.User
		if err := tx.First(&creator, actorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		c.MemberCount = 1
		role := models.RoleAdmin
		if kind.Exclusive() {
			role = models.RoleHost
			c.HostID = &actorID
		}
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if kind.Exclusive() {
			if err := claimOccupancy(tx, actorID, kind, c.ID); err != nil {
				return err
			}
		}
		m := models.Membership{ContainerID: c.ID, UserID: actorID, Role: role, JoinedAt: time.Now()}
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, err
	}

	created, err := s.Get(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	s.hooks.afterCreate(actorID, created)
	s.publish(created, EventUpdated, Project(created))
	return created, nil
}

// Update applies attrs after a host/admin check.
func (s *Service) Update(ctx context.Context, actorID, id uint, attrs UpdateAttrs) (*models.Container, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePrivileged(ctx, c, actorID); err != nil {
		return nil, err
	}
	return s.update(ctx, actorID, c, attrs)
}

// AdminUpdate applies attrs on behalf of the admin surface, bypassing the
// host/admin membership check.
func (s *Service) AdminUpdate(ctx context.Context, actorID, id uint, attrs UpdateAttrs) (*models.Container, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, actorID, c, attrs)
}

func (s *Service) update(ctx context.Context, actorID uint, c *models.Container, attrs UpdateAttrs) (*models.Container, error) {
	attrs, err := s.hooks.beforeUpdate(actorID, c, attrs)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if attrs.MaxMembers != nil {
			if *attrs.MaxMembers < 1 {
				return fmt.Errorf("%w: max_members must be positive", ErrInvalidAttrs)
			}
			// Shrinking below the live member count is rejected; the guard and
			// the count live in one statement so concurrent joins cannot slip in.
			res := tx.Model(&models.Container{}).
				Where("id = ? AND member_count <= ?", c.ID, *attrs.MaxMembers).
				Update("max_members", *attrs.MaxMembers)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrMaxMembersTooLow
			}
		}

		updates := map[string]interface{}{}
		if attrs.Title != nil {
			title := strings.TrimSpace(*attrs.Title)
			if title == "" {
				return fmt.Errorf("%w: title is required", ErrInvalidAttrs)
			}
			updates["title"] = title
		}
		if attrs.Description != nil {
			updates["description"] = *attrs.Description
		}
		if attrs.GameID != nil {
			updates["game_id"] = *attrs.GameID
		}
		if attrs.Hidden != nil {
			updates["hidden"] = *attrs.Hidden
		}
		if attrs.Password != nil {
			if *attrs.Password == "" {
				updates["password_hash"] = ""
			} else {
				hashed, err := bcrypt.GenerateFromPassword([]byte(*attrs.Password), bcrypt.DefaultCost)
				if err != nil {
					return err
				}
				updates["password_hash"] = string(hashed)
			}
		}
		if attrs.Metadata != nil {
			updates["metadata"] = attrs.Metadata
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&models.Container{}).Where("id = ?", c.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.Get(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	s.hooks.afterUpdate(actorID, updated)
	s.publish(updated, EventUpdated, Project(updated))
	return updated, nil
}

// Delete removes the container and all memberships after a host/admin check.
func (s *Service) Delete(ctx context.Context, actorID, id uint) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizePrivileged(ctx, c, actorID); err != nil {
		return err
	}
	return s.remove(ctx, actorID, c)
}

// AdminDelete removes any container on behalf of the admin surface.
func (s *Service) AdminDelete(ctx context.Context, actorID, id uint) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, actorID, c)
}

func (s *Service) remove(ctx context.Context, actorID uint, c *models.Container) error {
	if err := s.hooks.beforeDelete(actorID, c); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.Kind.Exclusive() {
			col := occupancyColumn(c.Kind)
			if err := tx.Model(&models.User{}).Where(col+" = ?", c.ID).
				Update(col, nil).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("container_id = ?", c.ID).Delete(&models.Membership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("container_id = ?", c.ID).Delete(&models.JoinRequest{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Container{}, c.ID).Error
	})
	if err != nil {
		return err
	}

	s.hooks.afterDelete(actorID, c)
	s.publish(c, EventDeleted, map[string]uint{"id": c.ID})
	return nil
}

// List returns one page of containers. Hidden containers are excluded unless
// the filter comes from a privileged (admin) view.
func (s *Service) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}

	query := s.db.WithContext(ctx).Model(&models.Container{}).Where("kind = ?", f.Kind)
	if !f.IncludeHidden {
		query = query.Where("hidden = ?", false)
	}
	if f.Title != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(f.Title)+"%")
	}
	if f.MetaKey != "" {
		// Metadata is stored as JSON text; a key/value filter matches the
		// serialized `"key":"value` fragment, value as prefix.
		pattern := `%"` + f.MetaKey + `":%`
		if f.MetaValue != "" {
			pattern = `%"` + f.MetaKey + `":"` + f.MetaValue + `%`
		}
		query = query.Where("metadata LIKE ?", pattern)
	}
	if f.GameID != nil {
		query = query.Where("game_id = ?", *f.GameID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.Container
	err := query.Preload("Host").Preload("Game").
		Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, TotalCount: total}, nil
}

package container

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gamehub/backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func occupancyColumn(kind models.ContainerKind) string {
	if kind == models.KindParty {
		return "current_party_id"
	}
	return "current_lobby_id"
}

// claimCapacity admits one more member by conditionally incrementing the
// container's member count. Check and claim are one statement, so two
// concurrent joiners can never both observe a free slot.
func claimCapacity(tx *gorm.DB, containerID uint) error {
	res := tx.Model(&models.Container{}).
		Where("id = ? AND member_count < max_members", containerID).
		UpdateColumn("member_count", gorm.Expr("member_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.Container{}).Where("id = ?", containerID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrFull
	}
	return nil
}

// claimOccupancy marks the user as occupying an exclusive container. The
// column is claimed only when currently free, in the same statement.
func claimOccupancy(tx *gorm.DB, userID uint, kind models.ContainerKind, containerID uint) error {
	col := occupancyColumn(kind)
	res := tx.Model(&models.User{}).
		Where("id = ? AND "+col+" IS NULL", userID).
		Update(col, containerID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if kind == models.KindParty {
			return ErrAlreadyInParty
		}
		return ErrAlreadyInLobby
	}
	return nil
}

func releaseOccupancy(tx *gorm.DB, userID uint, kind models.ContainerKind, containerID uint) error {
	col := occupancyColumn(kind)
	return tx.Model(&models.User{}).
		Where("id = ? AND "+col+" = ?", userID, containerID).
		Update(col, nil).Error
}

// Join admits the user. Capacity, exclusivity and the membership insert all
// run inside one transaction. Private and hidden groups are joined through
// the request flow instead.
func (s *Service) Join(ctx context.Context, actorID, containerID uint, password string) (*models.Container, error) {
	c, err := s.Get(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if c.Kind == models.KindGroup && c.GroupType != models.GroupPublic {
		return nil, ErrRequestRequired
	}
	if c.Locked() {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
			return nil, ErrInvalidPassword
		}
	}
	if err := s.hooks.beforeJoin(actorID, c); err != nil {
		return nil, err
	}

	becameHost := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, actorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if c.Kind == models.KindGroup {
			if _, err := membershipOf(tx, containerID, actorID); err == nil {
				return ErrAlreadyMember
			} else if !errors.Is(err, ErrNotMember) {
				return err
			}
		}

		if err := claimCapacity(tx, containerID); err != nil {
			return err
		}
		if c.Kind.Exclusive() {
			if err := claimOccupancy(tx, actorID, c.Kind, containerID); err != nil {
				return err
			}
		}

		// The capacity claim holds the container row for the rest of the
		// transaction, so this read is stable.
		var cur models.Container
		if err := tx.First(&cur, containerID).Error; err != nil {
			return err
		}
		role := models.RoleMember
		if cur.MemberCount == 1 && !cur.Hostless {
			if c.Kind == models.KindGroup {
				role = models.RoleAdmin
			} else {
				role = models.RoleHost
				if err := tx.Model(&models.Container{}).Where("id = ?", containerID).
					Update("host_id", actorID).Error; err != nil {
					return err
				}
				becameHost = true
			}
		}
		m := models.Membership{ContainerID: containerID, UserID: actorID, Role: role, JoinedAt: time.Now()}
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, err
	}

	joined, err := s.Get(ctx, containerID)
	if err != nil {
		return nil, err
	}
	s.hooks.afterJoin(actorID, joined)
	s.publish(joined, EventMemberJoined, map[string]uint{"user_id": actorID})
	if becameHost {
		s.hooks.afterHostChange(joined, actorID)
		s.publish(joined, EventHostChanged, map[string]uint{"new_host_id": actorID})
	}
	return joined, nil
}

// departure captures what removing a member did to the container.
type departure struct {
	deleted   bool
	newHostID *uint
}

// removeMember deletes the membership, releases claims and repairs the
// privileged-role invariant. Runs inside the caller's transaction.
func removeMember(tx *gorm.DB, c *models.Container, userID uint) (departure, error) {
	var d departure

	m, err := membershipOf(tx, c.ID, userID)
	if err != nil {
		return d, err
	}

	// Serializes against concurrent joins on the same container row.
	res := tx.Model(&models.Container{}).Where("id = ?", c.ID).
		UpdateColumn("member_count", gorm.Expr("member_count - 1"))
	if res.Error != nil {
		return d, res.Error
	}
	if err := tx.Delete(&models.Membership{}, m.ID).Error; err != nil {
		return d, err
	}
	if c.Kind.Exclusive() {
		if err := releaseOccupancy(tx, userID, c.Kind, c.ID); err != nil {
			return d, err
		}
	}

	var remaining []models.Membership
	if err := tx.Where("container_id = ?", c.ID).
		Order("joined_at ASC, id ASC").
		Find(&remaining).Error; err != nil {
		return d, err
	}

	if len(remaining) == 0 {
		// Lobbies and parties dissolve when empty; groups persist.
		if c.Kind.Exclusive() {
			if err := tx.Delete(&models.Container{}, c.ID).Error; err != nil {
				return d, err
			}
			d.deleted = true
		}
		return d, nil
	}

	needSuccessor := false
	if c.Kind.Exclusive() {
		needSuccessor = !c.Hostless && c.HostID != nil && *c.HostID == userID
	} else if m.Role == models.RoleAdmin {
		stillHasAdmin := false
		for _, r := range remaining {
			if r.Role == models.RoleAdmin {
				stillHasAdmin = true
				break
			}
		}
		needSuccessor = !stillHasAdmin
	}
	if needSuccessor {
		// Deterministic succession: earliest join wins.
		successor := remaining[0]
		role := models.RoleAdmin
		if c.Kind.Exclusive() {
			role = models.RoleHost
			if err := tx.Model(&models.Container{}).Where("id = ?", c.ID).
				Update("host_id", successor.UserID).Error; err != nil {
				return d, err
			}
		}
		if err := tx.Model(&models.Membership{}).Where("id = ?", successor.ID).
			Update("role", role).Error; err != nil {
			return d, err
		}
		uid := successor.UserID
		d.newHostID = &uid
	}
	return d, nil
}

// finishDeparture publishes the events a member removal produced.
func (s *Service) finishDeparture(c *models.Container, d departure, eventType string, userID uint) {
	s.publish(c, eventType, map[string]uint{"user_id": userID})
	if d.newHostID != nil {
		s.hooks.afterHostChange(c, *d.newHostID)
		s.publish(c, EventHostChanged, map[string]uint{"new_host_id": *d.newHostID})
	}
	if d.deleted {
		s.publish(c, EventDeleted, map[string]uint{"id": c.ID})
	}
}

// Leave removes the caller's own membership.
func (s *Service) Leave(ctx context.Context, actorID, containerID uint) error {
	c, err := s.Get(ctx, containerID)
	if err != nil {
		return err
	}
	if ok, err := s.IsMember(ctx, actorID, containerID); err != nil {
		return err
	} else if !ok {
		return ErrNotMember
	}
	if err := s.hooks.beforeLeave(actorID, c); err != nil {
		return err
	}

	var d departure
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = removeMember(tx, c, actorID)
		return err
	})
	if err != nil {
		return err
	}

	s.hooks.afterLeave(actorID, c)
	s.finishDeparture(c, d, EventMemberLeft, actorID)
	return nil
}

// Kick removes another member. The actor must be the host (lobby/party) or
// an admin (group) and cannot target themselves.
func (s *Service) Kick(ctx context.Context, actorID, containerID, targetID uint) error {
	c, err := s.Get(ctx, containerID)
	if err != nil {
		return err
	}
	if err := s.authorizePrivileged(ctx, c, actorID); err != nil {
		return err
	}
	return s.kick(ctx, actorID, c, targetID)
}

// AdminKick removes a member on behalf of the admin surface, which also
// covers hostless lobbies.
func (s *Service) AdminKick(ctx context.Context, actorID, containerID, targetID uint) error {
	c, err := s.Get(ctx, containerID)
	if err != nil {
		return err
	}
	return s.kick(ctx, actorID, c, targetID)
}

func (s *Service) kick(ctx context.Context, actorID uint, c *models.Container, targetID uint) error {
	if actorID == targetID {
		return ErrCannotKickSelf
	}
	if ok, err := s.IsMember(ctx, targetID, c.ID); err != nil {
		return err
	} else if !ok {
		return ErrNotMember
	}
	if err := s.hooks.beforeKick(actorID, targetID, c); err != nil {
		return err
	}

	var d departure
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = removeMember(tx, c, targetID)
		return err
	})
	if err != nil {
		return err
	}

	s.hooks.afterKick(actorID, targetID, c)
	s.Notify(ctx, targetID, models.NotificationKicked, map[string]string{
		"container_id": strconv.FormatUint(uint64(c.ID), 10),
		"kind":         string(c.Kind),
		"title":        c.Title,
	})
	s.finishDeparture(c, d, EventMemberKicked, targetID)
	return nil
}

// Promote grants a group member the admin role. Group-only; the actor must
// already be an admin and cannot promote themself.
func (s *Service) Promote(ctx context.Context, actorID, groupID, targetID uint) error {
	c, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if c.Kind != models.KindGroup {
		return ErrNotFound
	}
	if err := s.authorizePrivileged(ctx, c, actorID); err != nil {
		return err
	}
	if actorID == targetID {
		return ErrCannotPromoteSelf
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := membershipOf(tx, c.ID, targetID)
		if err != nil {
			return err
		}
		if m.Role == models.RoleAdmin {
			return nil
		}
		return tx.Model(&models.Membership{}).Where("id = ?", m.ID).
			Update("role", models.RoleAdmin).Error
	})
	if err != nil {
		return err
	}

	updated, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	s.publish(updated, EventUpdated, Project(updated))
	return nil
}

// Demote strips a group member's admin role. Admins cannot demote themselves,
// and the admin count check inside the transaction keeps two admins demoting
// each other concurrently from leaving the group with none.
func (s *Service) Demote(ctx context.Context, actorID, groupID, targetID uint) error {
	c, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if c.Kind != models.KindGroup {
		return ErrNotFound
	}
	if err := s.authorizePrivileged(ctx, c, actorID); err != nil {
		return err
	}
	if actorID == targetID {
		return ErrCannotDemoteSelf
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := membershipOf(tx, c.ID, targetID)
		if err != nil {
			return err
		}
		if m.Role != models.RoleAdmin {
			return nil
		}
		var admins int64
		if err := tx.Model(&models.Membership{}).
			Where("container_id = ? AND role = ?", c.ID, models.RoleAdmin).
			Count(&admins).Error; err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
		return tx.Model(&models.Membership{}).Where("id = ?", m.ID).
			Update("role", models.RoleMember).Error
	})
	if err != nil {
		return err
	}

	updated, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	s.publish(updated, EventUpdated, Project(updated))
	return nil
}

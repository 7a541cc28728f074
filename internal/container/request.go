package container

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gamehub/backend/internal/models"

	"gorm.io/gorm"
)

// RequestJoin files a pending join request for a group. No membership is
// created until an admin approves it.
func (s *Service) RequestJoin(ctx context.Context, actorID, groupID uint) (*models.JoinRequest, error) {
	c, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if c.Kind != models.KindGroup {
		return nil, ErrNotFound
	}
	if ok, err := s.IsMember(ctx, actorID, groupID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyMember
	}

	var existing models.JoinRequest
	err = s.db.WithContext(ctx).
		Where("container_id = ? AND user_id = ? AND status = ?", groupID, actorID, models.RequestPending).
		First(&existing).Error
	if err == nil {
		return nil, ErrRequestPending
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	req := models.JoinRequest{ContainerID: groupID, UserID: actorID, Status: models.RequestPending}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, err
	}

	s.publish(c, EventJoinRequest, map[string]uint{"user_id": actorID, "request_id": req.ID})
	return &req, nil
}

// ListRequests returns a group's pending join requests. Admin-only.
func (s *Service) ListRequests(ctx context.Context, actorID, groupID uint) ([]models.JoinRequest, error) {
	c, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if c.Kind != models.KindGroup {
		return nil, ErrNotFound
	}
	if err := s.authorizePrivileged(ctx, c, actorID); err != nil {
		return nil, err
	}

	var reqs []models.JoinRequest
	err = s.db.WithContext(ctx).
		Preload("User").
		Where("container_id = ? AND status = ?", groupID, models.RequestPending).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (s *Service) pendingRequest(ctx context.Context, groupID, requestID uint) (*models.JoinRequest, error) {
	var req models.JoinRequest
	err := s.db.WithContext(ctx).
		Where("id = ? AND container_id = ? AND status = ?", requestID, groupID, models.RequestPending).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ApproveRequest converts a pending request into a membership. Capacity is
// claimed at approval time, inside the same transaction as the insert, and
// join hooks run for the requester as they would on a direct join.
func (s *Service) ApproveRequest(ctx context.Context, actorID, groupID, requestID uint) error {
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
	req, err := s.pendingRequest(ctx, groupID, requestID)
	if err != nil {
		return err
	}
	if err := s.hooks.beforeJoin(req.UserID, c); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claimCapacity(tx, groupID); err != nil {
			return err
		}
		m := models.Membership{
			ContainerID: groupID,
			UserID:      req.UserID,
			Role:        models.RoleMember,
			JoinedAt:    time.Now(),
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		return tx.Model(&models.JoinRequest{}).Where("id = ?", req.ID).
			Update("status", models.RequestAccepted).Error
	})
	if err != nil {
		return err
	}

	joined, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	s.hooks.afterJoin(req.UserID, joined)
	s.Notify(ctx, req.UserID, models.NotificationRequestHandled, map[string]string{
		"group_id": strconv.FormatUint(uint64(groupID), 10),
		"title":    c.Title,
		"status":   string(models.RequestAccepted),
	})
	s.publish(joined, EventMemberJoined, map[string]uint{"user_id": req.UserID})
	return nil
}

// RejectRequest marks a pending request rejected. Admin-only.
func (s *Service) RejectRequest(ctx context.Context, actorID, groupID, requestID uint) error {
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
	req, err := s.pendingRequest(ctx, groupID, requestID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(&models.JoinRequest{}).Where("id = ?", req.ID).
		Update("status", models.RequestRejected).Error; err != nil {
		return err
	}

	s.Notify(ctx, req.UserID, models.NotificationRequestHandled, map[string]string{
		"group_id": strconv.FormatUint(uint64(groupID), 10),
		"title":    c.Title,
		"status":   string(models.RequestRejected),
	})
	return nil
}

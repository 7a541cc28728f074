package models

import (
	"time"

	"gorm.io/gorm"
)

type NotificationKind string

const (
	NotificationFriendRequest  NotificationKind = "friend_request"
	NotificationFriendAccepted NotificationKind = "friend_accepted"
	NotificationKicked         NotificationKind = "kicked"
	NotificationRequestHandled NotificationKind = "join_request_handled"
)

// Notification is a queued item for a user. Undelivered rows are pushed when
// the user (re)joins their realtime topic and marked delivered afterwards.
type Notification struct {
	gorm.Model
	UserID      uint              `gorm:"not null;index"`
	Kind        NotificationKind  `gorm:"size:50;not null"`
	Payload     map[string]string `gorm:"serializer:json"`
	DeliveredAt *time.Time
}

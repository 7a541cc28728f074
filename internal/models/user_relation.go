package models

import "time"

// FriendshipStatus is the state of a directed edge in the social graph.
type FriendshipStatus string

const (
	// StatusPending is a sent request the target has not answered yet.
	// Until accepted the edge behaves like a one-way follow.
	StatusPending FriendshipStatus = "pending"

	// StatusAccepted turns the edge into a mutual friendship.
	StatusAccepted FriendshipStatus = "accepted"
)

// UserRelation is one directed edge between two users. The composite primary
// key allows at most one edge per direction.
type UserRelation struct {
	FromUserID uint             `gorm:"primaryKey"`
	ToUserID   uint             `gorm:"primaryKey"`
	Status     FriendshipStatus `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	FromUser User `gorm:"foreignKey:FromUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ToUser   User `gorm:"foreignKey:ToUserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

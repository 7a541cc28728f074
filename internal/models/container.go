package models

import (
	"time"

	"gorm.io/gorm"
)

// ContainerKind discriminates the three membership container types.
type ContainerKind string

const (
	KindLobby ContainerKind = "lobby"
	KindParty ContainerKind = "party"
	KindGroup ContainerKind = "group"
)

// Exclusive reports whether a user may hold at most one membership of this kind.
func (k ContainerKind) Exclusive() bool {
	return k == KindLobby || k == KindParty
}

// GroupType controls group visibility and join policy.
type GroupType string

const (
	GroupPublic  GroupType = "public"
	GroupPrivate GroupType = "private"
	GroupHidden  GroupType = "hidden"
)

// MemberRole is the role a user holds inside a container.
type MemberRole string

const (
	RoleHost   MemberRole = "host"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// Container is a lobby, party or group that users gather in.
type Container struct {
	gorm.Model
	Kind        ContainerKind `gorm:"size:20;not null;index"`
	Title       string        `gorm:"size:255;not null"`
	Description string
	GameID      *uint `gorm:"index"` // lobbies advertise the game being played
	HostID      *uint `gorm:"index"` // nil for groups and hostless lobbies
	MaxMembers  int   `gorm:"not null;default:5"`

	// MemberCount mirrors the number of membership rows and is the value the
	// capacity guard claims against. Never written outside a transaction.
	MemberCount int `gorm:"not null;default:0"`

	Hidden       bool
	Hostless     bool              // server-managed lobby, no host invariants
	GroupType    GroupType         `gorm:"size:20"` // groups only
	PasswordHash string            `gorm:"size:255"`
	Metadata     map[string]string `gorm:"serializer:json"`

	Game        *Game        `gorm:"foreignKey:GameID"`
	Host        *User        `gorm:"foreignKey:HostID"`
	Memberships []Membership `gorm:"foreignKey:ContainerID"`
}

// Locked reports whether joining requires a password.
func (c *Container) Locked() bool { return c.PasswordHash != "" }

// Membership associates a user with a container.
type Membership struct {
	ID          uint `gorm:"primaryKey"`
	ContainerID uint `gorm:"not null;uniqueIndex:idx_container_user"`
	UserID      uint `gorm:"not null;uniqueIndex:idx_container_user;index"`
	Role        MemberRole `gorm:"size:20;not null;default:'member'"`
	JoinedAt    time.Time  `gorm:"not null;index"`

	User User `gorm:"foreignKey:UserID"`
}

// JoinRequestStatus is the state of a pending group join request.
type JoinRequestStatus string

const (
	RequestPending  JoinRequestStatus = "pending"
	RequestAccepted JoinRequestStatus = "accepted"
	RequestRejected JoinRequestStatus = "rejected"
)

// JoinRequest is created when a user asks to join a private or hidden group.
// Approval by an admin converts it into a membership.
type JoinRequest struct {
	gorm.Model
	ContainerID uint              `gorm:"not null;index"`
	UserID      uint              `gorm:"not null;index"`
	Status      JoinRequestStatus `gorm:"size:20;not null;default:'pending'"`

	User User `gorm:"foreignKey:UserID"`
}

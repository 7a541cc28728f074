package models

import "gorm.io/gorm"

// User represents a user in the system.
type User struct {
	gorm.Model
	Nickname      string  `gorm:"size:255;unique;not null"`
	Email         string  `gorm:"size:255;unique;not null"`
	PasswordHash  string  `gorm:"size:255;not null"`
	Role          string  `gorm:"size:50;not null;default:'user';index"`
	Online        bool    `gorm:"not null;default:false"`
	FavoriteGames []*Game `gorm:"many2many:user_favorite_games;"`

	// Exclusive container occupancy. A user can be in at most one lobby and
	// one party at a time; joins claim these columns atomically.
	CurrentLobbyID *uint      `gorm:"index"`
	CurrentPartyID *uint      `gorm:"index"`
	CurrentLobby   *Container `gorm:"foreignKey:CurrentLobbyID"`
	CurrentParty   *Container `gorm:"foreignKey:CurrentPartyID"`
}

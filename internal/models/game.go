package models

import "gorm.io/gorm"

// Game is a catalog entry. Lobbies and leaderboard scores reference a game;
// LeaderboardEnabled lets admins turn score submission off per title.
type Game struct {
	gorm.Model
	Name               string `gorm:"size:255;not null"`
	Description        string
	StoreURL           string `gorm:"size:512;unique"`
	LeaderboardEnabled bool
	Tags               []*Tag `gorm:"many2many:game_tags;"`
}

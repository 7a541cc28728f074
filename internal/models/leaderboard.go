package models

import "gorm.io/gorm"

// LeaderboardEntry holds a user's best score for a game. One row per
// (game, user); submissions only ever raise the score.
type LeaderboardEntry struct {
	gorm.Model
	GameID uint  `gorm:"not null;uniqueIndex:idx_game_user"`
	UserID uint  `gorm:"not null;uniqueIndex:idx_game_user"`
	Score  int64 `gorm:"not null;index"`

	User User `gorm:"foreignKey:UserID"`
	Game Game `gorm:"foreignKey:GameID"`
}

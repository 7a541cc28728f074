package models

import "gorm.io/gorm"

// Tag labels catalog games for filtering ("Co-op", "Shooter", "Roguelike").
type Tag struct {
	gorm.Model
	Name  string  `gorm:"size:100;unique;not null"`
	Games []*Game `gorm:"many2many:game_tags;"`
}

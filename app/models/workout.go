package models

import (
	"time"

	"gorm.io/gorm"
)

// Workout is a minimal projection of the workout-plan table owned by the
// CRUD part of the backend. The engine only counts rows per user for limit
// evaluation.
type Workout struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Name      string         `gorm:"type:varchar(150);not null" json:"name"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// UserSettings stores per-user preferences plus the current-plan pointer.
//
// CurrentPlanID is a derived projection over the user_subscriptions ledger:
// it is recomputed whenever the ledger changes (payment capture, admin plan
// change, expiration sweep) and must never be treated as a second source of
// truth. Reads that need authoritative state go through the ledger.
type UserSettings struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"uniqueIndex" json:"user_id"`
	CurrentPlanID    uint           `gorm:"not null;default:0;index" json:"current_plan_id"`
	Timezone         string         `gorm:"type:varchar(64);default:'UTC'" json:"timezone"`
	APIKeyHash       string         `gorm:"type:varchar(64);index" json:"-"`
	APIKeyLastUsedAt *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// HashAPIKey returns the storable hash of a raw API key.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// GetOrCreateUserSettings returns existing settings or creates defaults
func GetOrCreateUserSettings(db *gorm.DB, userID uint) (*UserSettings, error) {
	var us UserSettings
	if err := db.Where("user_id = ?", userID).First(&us).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			defaultPlanID := uint(0)
			var free SubscriptionPlan
			if err := db.Where("is_default = ?", true).First(&free).Error; err == nil {
				defaultPlanID = free.ID
			}
			us = UserSettings{UserID: userID, CurrentPlanID: defaultPlanID, Timezone: "UTC"}
			if err := db.Create(&us).Error; err != nil {
				return nil, err
			}
			return &us, nil
		}
		return nil, err
	}
	return &us, nil
}

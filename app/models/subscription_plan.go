package models

import "time"

// SubscriptionPlan is an immutable catalog entry describing a purchasable
// plan and its entitlement limits. Rows are maintained by administrators and
// are never deleted while referenced by the subscription ledger.
//
// Nil limit columns mean "unlimited" for paid plans; the free plan always
// carries concrete limits.
type SubscriptionPlan struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"name" validate:"required,min=2,max=100"`
	Price              float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price" validate:"gte=0"`
	Currency           string    `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency" validate:"len=3"`
	MaxWorkouts        *int      `gorm:"default:null" json:"max_workouts,omitempty"`
	MaxCustomExercises *int      `gorm:"default:null" json:"max_custom_exercises,omitempty"`
	AdvancedStats      bool      `gorm:"default:false" json:"advanced_stats"`
	CloudBackup        bool      `gorm:"default:false" json:"cloud_backup"`
	AdFree             bool      `gorm:"default:false" json:"ad_free"`
	IsDefault          bool      `gorm:"default:false;index" json:"is_default"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFree reports whether this is the default (free) plan.
func (p *SubscriptionPlan) IsFree() bool {
	return p.IsDefault
}

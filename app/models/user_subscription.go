package models

import "time"

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

const (
	PaymentProviderPayPal = "paypal"
	PaymentProviderAdmin  = "admin"
)

// UserSubscription is one subscription period in the per-user ledger. Rows
// are append-mostly: they are created on successful payment capture or by an
// administrative plan change, mutated only to flip status (active->cancelled
// when superseded, active->expired when the period elapses) and never
// physically deleted.
//
// Application invariant: at most one row per user may be active with an
// end_date in the future at any consistent read point.
type UserSubscription struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"not null;index:idx_user_subscriptions_user_status,priority:1" json:"user_id"`
	PlanID           uint       `gorm:"not null;index" json:"plan_id"`
	Status           string     `gorm:"type:varchar(20);not null;default:'active';index:idx_user_subscriptions_user_status,priority:2" json:"status"`
	StartDate        time.Time  `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate          *time.Time `gorm:"type:timestamp;default:null;index" json:"end_date,omitempty"`
	PaymentProvider  string     `gorm:"type:varchar(20);not null;default:''" json:"payment_provider"`
	PaymentReference string     `gorm:"type:varchar(191);not null;default:''" json:"payment_reference"`
	AutoRenew        bool       `gorm:"default:false" json:"auto_renew"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Plan SubscriptionPlan `gorm:"foreignKey:PlanID" json:"-"`
}

// IsCurrent reports whether the row entitles the user at the given instant.
// The canonical predicate is timestamp-precision: end_date must be strictly
// in the future.
func (s *UserSubscription) IsCurrent(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate != nil && s.EndDate.After(now)
}

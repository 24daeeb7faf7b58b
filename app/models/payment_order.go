package models

import "time"

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

const (
	OrderPurposeSubscription = "subscription"
	OrderPurposeDonation     = "donation"
)

// PaymentOrder is one row per externally-initiated payment attempt. The
// public id is the opaque, client-exposed identifier; the provider order id
// is assigned once the provider-side order exists.
//
// Status transitions are monotonic: pending -> completed or
// pending -> cancelled, and a terminal order is immutable.
type PaymentOrder struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	PublicID        string     `gorm:"type:char(36);not null;uniqueIndex" json:"public_id"`
	ProviderOrderID *string    `gorm:"type:varchar(64);default:null;index" json:"provider_order_id,omitempty"`
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	Amount          float64    `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency        string     `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Purpose         string     `gorm:"type:varchar(20);not null" json:"purpose"`
	PlanID          *uint      `gorm:"default:null" json:"plan_id,omitempty"`
	Message         string     `gorm:"type:varchar(500);default:''" json:"message,omitempty"`
	DisplayName     string     `gorm:"type:varchar(100);default:''" json:"display_name,omitempty"`
	Status          string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ProviderTxnID   string     `gorm:"type:varchar(64);not null;default:''" json:"provider_txn_id,omitempty"`
	CompletedAt     *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the order reached a final state.
func (o *PaymentOrder) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}

package models

import "time"

// Donation records a completed donation-purpose payment order.
type Donation struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PaymentOrderID uint      `gorm:"not null;uniqueIndex" json:"payment_order_id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	Amount         float64   `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency       string    `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Message        string    `gorm:"type:varchar(500);default:''" json:"message,omitempty"`
	DisplayName    string    `gorm:"type:varchar(100);default:''" json:"display_name,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

package models

import "time"

// ProcessedRequestRetention is how long idempotency markers are kept before
// the maintenance job discards them.
const ProcessedRequestRetention = 7 * 24 * time.Hour

// ProcessedRequest is a durable idempotency marker keyed by a client- or
// provider-supplied request identifier. A row is created the first time an
// identifier is seen and never updated; the unique index makes duplicate
// processing attempts detectable under concurrency.
type ProcessedRequest struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequestID   string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"request_id"`
	ProcessedAt time.Time `gorm:"type:timestamp;not null" json:"processed_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

package repository

import (
	"time"

	"github.com/FitLedger/FitLedger/app/models"
	"gorm.io/gorm"
)

// orderRepository implements the OrderRepository interface
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// GetByPublicID retrieves an order by its public identifier
func (r *orderRepository) GetByPublicID(publicID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := r.db.Where("public_id = ?", publicID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByUserID retrieves a user's orders with pagination, newest first
func (r *orderRepository) ListByUserID(userID uint, offset, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error
	return orders, err
}

// ListCompletedBetween returns completed orders in [start, end) by completion time
func (r *orderRepository) ListCompletedBetween(start, end time.Time) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := r.db.Where("status = ? AND completed_at >= ? AND completed_at < ?",
		models.OrderStatusCompleted, start, end).
		Order("completed_at ASC").
		Find(&orders).Error
	return orders, err
}

// CountByStatus returns the number of orders in the given status
func (r *orderRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentOrder{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// DeleteProcessedRequestsBefore drops idempotency markers older than the
// cutoff. Safe to run repeatedly.
func (r *orderRepository) DeleteProcessedRequestsBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("processed_at < ?", cutoff).Delete(&models.ProcessedRequest{})
	return res.RowsAffected, res.Error
}

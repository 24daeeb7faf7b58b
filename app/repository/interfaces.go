package repository

import (
	"time"

	"github.com/FitLedger/FitLedger/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// OrderRepository defines the administrative and maintenance views over the
// payment order ledger. The transactional order writes live in the payment
// service; this interface is read-mostly.
type OrderRepository interface {
	GetByPublicID(publicID string) (*models.PaymentOrder, error)
	ListByUserID(userID uint, offset, limit int) ([]models.PaymentOrder, error)
	ListCompletedBetween(start, end time.Time) ([]models.PaymentOrder, error)
	CountByStatus(status string) (int64, error)
	DeleteProcessedRequestsBefore(cutoff time.Time) (int64, error)
}

// Repositories bundles all repository instances
type Repositories struct {
	User  UserRepository
	Order OrderRepository
}

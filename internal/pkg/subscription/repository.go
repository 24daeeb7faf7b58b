package subscription

import (
	"time"

	"github.com/FitLedger/FitLedger/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the subscription service.
type Repository interface {
	// ExpireElapsed flips every elapsed active row of the user to expired
	// and recomputes the current-plan pointer. Returns the number of rows
	// flipped. The update is a conditional status flip, so concurrent
	// sweeps racing on the same row are safe.
	ExpireElapsed(userID uint, now time.Time) (int64, error)
	// CurrentSubscriptions returns the user's active rows with end_date
	// strictly in the future, furthest expiry first, plan preloaded.
	CurrentSubscriptions(userID uint, now time.Time) ([]models.UserSubscription, error)
	ApplyAdminPlanChange(userID uint, plan *models.SubscriptionPlan, now time.Time) (*models.UserSubscription, error)
	GetPlan(planID uint) (*models.SubscriptionPlan, error)
	GetDefaultPlan() (*models.SubscriptionPlan, error)
	ListPlans() ([]models.SubscriptionPlan, error)
	CountUsage(userID uint) (Usage, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ExpireElapsed(userID uint, now time.Time) (int64, error) {
	var flipped int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserSubscription{}).
			Where("user_id = ? AND status = ? AND end_date <= ?", userID, models.SubscriptionStatusActive, now).
			Update("status", models.SubscriptionStatusExpired)
		if res.Error != nil {
			return res.Error
		}
		flipped = res.RowsAffected
		if flipped == 0 {
			return nil
		}
		return recomputePlanPointer(tx, userID, now)
	})
	return flipped, err
}

func (r *gormRepository) CurrentSubscriptions(userID uint, now time.Time) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.Preload("Plan").
		Where("user_id = ? AND status = ? AND end_date > ?", userID, models.SubscriptionStatusActive, now).
		Order("end_date DESC").
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ApplyAdminPlanChange(userID uint, plan *models.SubscriptionPlan, now time.Time) (*models.UserSubscription, error) {
	var created *models.UserSubscription
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var active []models.UserSubscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
			Find(&active).Error; err != nil {
			return err
		}
		for i := range active {
			if err := tx.Model(&active[i]).Updates(map[string]any{
				"status":   models.SubscriptionStatusCancelled,
				"end_date": now,
			}).Error; err != nil {
				return err
			}
		}

		if !plan.IsFree() {
			endDate := now.AddDate(0, 1, 0)
			sub := &models.UserSubscription{
				UserID:          userID,
				PlanID:          plan.ID,
				Status:          models.SubscriptionStatusActive,
				StartDate:       now,
				EndDate:         &endDate,
				PaymentProvider: models.PaymentProviderAdmin,
			}
			if err := tx.Create(sub).Error; err != nil {
				return err
			}
			created = sub
		}

		us, err := models.GetOrCreateUserSettings(tx, userID)
		if err != nil {
			return err
		}
		us.CurrentPlanID = plan.ID
		return tx.Save(us).Error
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *gormRepository) GetPlan(planID uint) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.First(&plan, planID).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) GetDefaultPlan() (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.Where("is_default = ?", true).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) ListPlans() ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Order("price ASC").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) CountUsage(userID uint) (Usage, error) {
	var usage Usage
	var count int64
	if err := r.db.Model(&models.Workout{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return usage, err
	}
	usage.Workouts = int(count)
	if err := r.db.Model(&models.CustomExercise{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return usage, err
	}
	usage.CustomExercises = int(count)
	return usage, nil
}

// recomputePlanPointer rewrites the user-settings plan pointer from the
// ledger after expirations. Runs inside the sweep transaction.
func recomputePlanPointer(tx *gorm.DB, userID uint, now time.Time) error {
	var current models.UserSubscription
	planID := uint(0)
	err := tx.Where("user_id = ? AND status = ? AND end_date > ?", userID, models.SubscriptionStatusActive, now).
		Order("end_date DESC").
		First(&current).Error
	switch {
	case err == nil:
		planID = current.PlanID
	case err == gorm.ErrRecordNotFound:
		var free models.SubscriptionPlan
		if err := tx.Where("is_default = ?", true).First(&free).Error; err != nil {
			return err
		}
		planID = free.ID
	default:
		return err
	}

	us, err := models.GetOrCreateUserSettings(tx, userID)
	if err != nil {
		return err
	}
	us.CurrentPlanID = planID
	return tx.Save(us).Error
}

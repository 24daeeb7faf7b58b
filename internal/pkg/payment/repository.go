package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/FitLedger/FitLedger/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the payment service. The
// finalize methods are single atomic transactions with row-level locking so
// that concurrent reconcilers for the same order cannot both apply the
// transition.
type Repository interface {
	CreateOrder(order *models.PaymentOrder) error
	GetOrderByPublicID(publicID string) (*models.PaymentOrder, error)
	SetProviderOrderID(orderID uint, providerOrderID string) error
	GetPlan(planID uint) (*models.SubscriptionPlan, error)
	HasProcessedRequest(requestID string) (bool, error)
	FinalizeOrder(in FinalizeInput) (*FinalizeOutcome, error)
	CancelOrder(in FinalizeInput) (*FinalizeOutcome, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateOrder(order *models.PaymentOrder) error {
	return r.db.Create(order).Error
}

func (r *gormRepository) GetOrderByPublicID(publicID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.Where("public_id = ?", publicID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) SetProviderOrderID(orderID uint, providerOrderID string) error {
	return r.db.Model(&models.PaymentOrder{}).
		Where("id = ?", orderID).
		Update("provider_order_id", providerOrderID).Error
}

func (r *gormRepository) GetPlan(planID uint) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.First(&plan, planID).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) HasProcessedRequest(requestID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.ProcessedRequest{}).
		Where("request_id = ?", requestID).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) FinalizeOrder(in FinalizeInput) (*FinalizeOutcome, error) {
	out := &FinalizeOutcome{}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		order, terminal, err := lockPendingOrder(tx, in.OrderID, out)
		if err != nil || terminal {
			return err
		}

		if err := tx.Model(order).Updates(map[string]any{
			"status":          models.OrderStatusCompleted,
			"provider_txn_id": in.ProviderTxnID,
			"completed_at":    in.Now,
		}).Error; err != nil {
			return err
		}

		switch order.Purpose {
		case models.OrderPurposeSubscription:
			sub, err := applySubscriptionTransition(tx, order, in.ProviderTxnID, in.Now)
			if err != nil {
				return err
			}
			out.Subscription = sub
		case models.OrderPurposeDonation:
			donation := &models.Donation{
				PaymentOrderID: order.ID,
				UserID:         order.UserID,
				Amount:         order.Amount,
				Currency:       order.Currency,
				Message:        order.Message,
				DisplayName:    order.DisplayName,
			}
			if err := tx.Create(donation).Error; err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown order purpose %q", order.Purpose)
		}

		if err := writeMarker(tx, in.RequestID, in.Now); err != nil {
			return err
		}
		out.Status = models.OrderStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) CancelOrder(in FinalizeInput) (*FinalizeOutcome, error) {
	out := &FinalizeOutcome{}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		order, terminal, err := lockPendingOrder(tx, in.OrderID, out)
		if err != nil || terminal {
			return err
		}

		if err := tx.Model(order).Update("status", models.OrderStatusCancelled).Error; err != nil {
			return err
		}
		if err := writeMarker(tx, in.RequestID, in.Now); err != nil {
			return err
		}
		out.Status = models.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockPendingOrder loads the order FOR UPDATE and rechecks the pending
// status under the lock. A concurrent reconciler that committed first is
// observed here; the caller then returns the recorded terminal state without
// side effects.
func lockPendingOrder(tx *gorm.DB, orderID uint, out *FinalizeOutcome) (*models.PaymentOrder, bool, error) {
	var order models.PaymentOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, orderID).Error; err != nil {
		return nil, false, err
	}
	if order.Status != models.OrderStatusPending {
		out.AlreadyTerminal = true
		out.Status = order.Status
		return nil, true, nil
	}
	return &order, false, nil
}

// applySubscriptionTransition supersedes any active subscription rows and
// inserts the new period, keeping the user-settings plan pointer in sync.
// Runs inside the caller's transaction; the affected ledger rows are locked
// to prevent lost updates under concurrent reconciliation for the same user.
func applySubscriptionTransition(tx *gorm.DB, order *models.PaymentOrder, txnRef string, now time.Time) (*models.UserSubscription, error) {
	if order.PlanID == nil {
		return nil, fmt.Errorf("subscription order %d has no plan reference", order.ID)
	}

	var active []models.UserSubscription
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ?", order.UserID, models.SubscriptionStatusActive).
		Find(&active).Error; err != nil {
		return nil, err
	}
	for i := range active {
		if err := tx.Model(&active[i]).Updates(map[string]any{
			"status":   models.SubscriptionStatusCancelled,
			"end_date": now,
		}).Error; err != nil {
			return nil, err
		}
	}

	endDate := now.AddDate(0, 1, 0)
	sub := &models.UserSubscription{
		UserID:           order.UserID,
		PlanID:           *order.PlanID,
		Status:           models.SubscriptionStatusActive,
		StartDate:        now,
		EndDate:          &endDate,
		PaymentProvider:  models.PaymentProviderPayPal,
		PaymentReference: txnRef,
	}
	if err := tx.Create(sub).Error; err != nil {
		return nil, err
	}

	us, err := models.GetOrCreateUserSettings(tx, order.UserID)
	if err != nil {
		return nil, err
	}
	us.CurrentPlanID = *order.PlanID
	if err := tx.Save(us).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

// writeMarker persists the idempotency marker inside the transaction. The
// unique index on request_id turns a duplicate into a no-op rather than an
// error, which keeps racing duplicate callbacks safe.
func writeMarker(tx *gorm.DB, requestID string, now time.Time) error {
	if requestID == "" {
		return nil
	}
	marker := &models.ProcessedRequest{RequestID: requestID, ProcessedAt: now}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoNothing: true,
	}).Create(marker).Error
}

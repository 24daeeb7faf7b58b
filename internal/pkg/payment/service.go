package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/internal/pkg/env"
	"github.com/FitLedger/FitLedger/internal/pkg/paypal"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the order coordinator and reconciliation engine. It creates
// provider-backed payment orders and aligns local order/subscription state
// with the provider's authoritative status.
type Service struct {
	repo      Repository
	gateway   Gateway
	snapshots SnapshotReader

	publicBaseURL string
	now           func() time.Time
}

// NewService creates a payment service from injected collaborators.
func NewService(repo Repository, gateway Gateway, snapshots SnapshotReader) *Service {
	return &Service{
		repo:          repo,
		gateway:       gateway,
		snapshots:     snapshots,
		publicBaseURL: strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"),
		now:           time.Now,
	}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway, snapshots SnapshotReader) *Service {
	return NewService(NewRepository(db), gateway, snapshots)
}

// CreateOrder validates the request, inserts a pending local order and
// mirrors it at the provider. A provider failure leaves the pending row
// behind; it is harmless because it can only transition through a later
// successful reconciliation.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.UserID == 0 {
		return nil, &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if in.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "EUR"
	}
	if len(currency) != 3 {
		return nil, &ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
	}

	order := &models.PaymentOrder{
		PublicID: uuid.NewString(),
		UserID:   in.UserID,
		Amount:   in.Amount,
		Currency: currency,
		Status:   models.OrderStatusPending,
	}

	var description string
	switch in.Purpose.Kind {
	case PurposeSubscription:
		plan, err := s.repo.GetPlan(in.Purpose.PlanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &ValidationError{Field: "plan_id", Reason: "unknown plan"}
			}
			return nil, &PersistenceError{Op: "plan lookup", Err: err}
		}
		if plan.IsFree() {
			return nil, &ValidationError{Field: "plan_id", Reason: "the default plan cannot be purchased"}
		}
		planID := plan.ID
		order.Purpose = models.OrderPurposeSubscription
		order.PlanID = &planID
		description = fmt.Sprintf("FitLedger %s subscription (1 month)", plan.Name)
	case PurposeDonation:
		if len(in.Purpose.Message) > 500 {
			return nil, &ValidationError{Field: "message", Reason: "must be at most 500 characters"}
		}
		order.Purpose = models.OrderPurposeDonation
		order.Message = strings.TrimSpace(in.Purpose.Message)
		order.DisplayName = strings.TrimSpace(in.Purpose.DisplayName)
		description = "FitLedger donation"
	default:
		return nil, &ValidationError{Field: "purpose", Reason: "must be subscription or donation"}
	}

	if err := s.repo.CreateOrder(order); err != nil {
		return nil, &PersistenceError{Op: "order insert", Err: err}
	}

	created, err := s.gateway.CreateOrder(ctx, paypal.CreateOrderParams{
		Amount:      order.Amount,
		Currency:    order.Currency,
		Description: description,
		ReferenceID: order.PublicID,
		ReturnURL:   s.callbackURL("/payments/return", order.PublicID),
		CancelURL:   s.callbackURL("/payments/cancel", order.PublicID),
	})
	if err != nil {
		// The pending row stays; it never transitions without a later
		// successful capture.
		return nil, &ProviderError{Op: "create order", Err: err}
	}

	if err := s.repo.SetProviderOrderID(order.ID, created.ProviderOrderID); err != nil {
		// No rollback is possible against the provider; leave a trail for
		// manual reconciliation instead.
		log.Printf("payment: orphaned provider order %s for local order %s: %v",
			created.ProviderOrderID, order.PublicID, err)
		return nil, &PersistenceError{Op: "provider order id update", Err: err}
	}

	return &CreateOrderResult{
		OrderID:         order.PublicID,
		ProviderOrderID: created.ProviderOrderID,
		ApprovalURL:     created.ApprovalURL,
		Status:          models.OrderStatusPending,
	}, nil
}

// Reconcile aligns the local order with the provider's status and, for
// completed subscription orders, applies the atomic ledger transition.
//
// Trigger sources (webhook, redirect callback, explicit poll) may race; the
// terminal-state check plus the locked pending-status recheck inside the
// finalize transaction guarantee at most one caller performs the mutation,
// while every caller observes the same final result.
func (s *Service) Reconcile(ctx context.Context, publicOrderID, requestID string) (*ReconcileResult, error) {
	order, err := s.repo.GetOrderByPublicID(publicOrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "order lookup", Err: err}
	}

	// First idempotency guard: a terminal order is immutable, return its
	// recorded state without touching the provider.
	if order.IsTerminal() {
		return s.result(ctx, order.PublicID, order.Status, order)
	}

	// Second idempotency guard: a previously processed request id means a
	// duplicate delivery racing or retried after the fact.
	if requestID != "" {
		seen, err := s.repo.HasProcessedRequest(requestID)
		if err != nil {
			return nil, &PersistenceError{Op: "idempotency lookup", Err: err}
		}
		if seen {
			return s.result(ctx, order.PublicID, order.Status, order)
		}
	}

	if order.ProviderOrderID == nil {
		// Provider order creation never succeeded; nothing to reconcile.
		return &ReconcileResult{OrderID: order.PublicID, FinalStatus: models.OrderStatusPending}, nil
	}

	status, err := s.gateway.GetOrderStatus(ctx, *order.ProviderOrderID)
	if err != nil {
		return nil, &ProviderError{Op: "status query", Err: err}
	}

	txnRef := *order.ProviderOrderID
	if status == paypal.OrderStatusApproved {
		// Authorized but not captured yet; capture now. A timeout here is an
		// unknown outcome: the order stays pending and the next
		// reconciliation observes whatever the provider recorded.
		capture, err := s.gateway.CaptureOrder(ctx, *order.ProviderOrderID)
		if err != nil {
			return nil, &ProviderError{Op: "capture", Err: err}
		}
		status = capture.Status
		if capture.TransactionID != "" {
			txnRef = capture.TransactionID
		}
	}

	now := s.now()
	switch status {
	case paypal.OrderStatusCompleted:
		outcome, err := s.repo.FinalizeOrder(FinalizeInput{
			OrderID:       order.ID,
			ProviderTxnID: txnRef,
			RequestID:     requestID,
			Now:           now,
		})
		if err != nil {
			return nil, &PersistenceError{Op: "order finalize", Err: err}
		}
		order.Status = outcome.Status
		return s.result(ctx, order.PublicID, outcome.Status, order)
	case paypal.OrderStatusVoided:
		outcome, err := s.repo.CancelOrder(FinalizeInput{
			OrderID:   order.ID,
			RequestID: requestID,
			Now:       now,
		})
		if err != nil {
			return nil, &PersistenceError{Op: "order cancel", Err: err}
		}
		return &ReconcileResult{OrderID: order.PublicID, FinalStatus: outcome.Status}, nil
	default:
		// Not terminal at the provider; leave the order pending, safe to
		// retry later.
		return &ReconcileResult{OrderID: order.PublicID, FinalStatus: models.OrderStatusPending}, nil
	}
}

// Abort cancels a pending order after the buyer backed out of the approval
// flow. Terminal orders are reported as-is.
func (s *Service) Abort(ctx context.Context, publicOrderID string) (*ReconcileResult, error) {
	order, err := s.repo.GetOrderByPublicID(publicOrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "order lookup", Err: err}
	}
	if order.IsTerminal() {
		return s.result(ctx, order.PublicID, order.Status, order)
	}

	outcome, err := s.repo.CancelOrder(FinalizeInput{OrderID: order.ID, Now: s.now()})
	if err != nil {
		return nil, &PersistenceError{Op: "order cancel", Err: err}
	}
	return &ReconcileResult{OrderID: order.PublicID, FinalStatus: outcome.Status}, nil
}

// result assembles the reconcile response, attaching the effective
// subscription snapshot for completed subscription orders.
func (s *Service) result(ctx context.Context, publicID, status string, order *models.PaymentOrder) (*ReconcileResult, error) {
	out := &ReconcileResult{OrderID: publicID, FinalStatus: status}
	if status == models.OrderStatusCompleted && order.Purpose == models.OrderPurposeSubscription && s.snapshots != nil {
		snap, err := s.snapshots.GetEffectiveSubscription(ctx, order.UserID)
		if err != nil {
			// The order state is already decided; a snapshot failure must
			// not make the outcome ambiguous.
			log.Printf("payment: subscription snapshot for user %d failed: %v", order.UserID, err)
		} else {
			out.Subscription = snap
		}
	}
	return out, nil
}

func (s *Service) callbackURL(path, publicOrderID string) string {
	return fmt.Sprintf("%s%s?order_id=%s", s.publicBaseURL, path, publicOrderID)
}

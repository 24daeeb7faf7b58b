package payment

import (
	"context"
	"time"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/internal/pkg/paypal"
	"github.com/FitLedger/FitLedger/internal/pkg/subscription"
)

// Purpose is the closed set of things an order can pay for. Exactly one of
// the variant fields is set; Kind discriminates.
type Purpose struct {
	Kind PurposeKind

	// Subscription variant
	PlanID uint

	// Donation variant
	Message     string
	DisplayName string
}

type PurposeKind string

const (
	PurposeSubscription PurposeKind = models.OrderPurposeSubscription
	PurposeDonation     PurposeKind = models.OrderPurposeDonation
)

// SubscriptionPurpose builds the subscription variant.
func SubscriptionPurpose(planID uint) Purpose {
	return Purpose{Kind: PurposeSubscription, PlanID: planID}
}

// DonationPurpose builds the donation variant.
func DonationPurpose(message, displayName string) Purpose {
	return Purpose{Kind: PurposeDonation, Message: message, DisplayName: displayName}
}

// CreateOrderInput is the coordinator's request shape.
type CreateOrderInput struct {
	UserID   uint
	Amount   float64
	Currency string
	Purpose  Purpose
}

// CreateOrderResult is returned to the caller so the client can be redirected
// to the provider's approval flow.
type CreateOrderResult struct {
	OrderID         string `json:"order_id"`
	ProviderOrderID string `json:"provider_order_id"`
	ApprovalURL     string `json:"approval_url"`
	Status          string `json:"status"`
}

// ReconcileResult reports the order state after a reconciliation attempt.
// Pending is distinct from the terminal states so callers can tell "retry
// later" apart from "failed permanently".
type ReconcileResult struct {
	OrderID      string                 `json:"order_id"`
	FinalStatus  string                 `json:"status"`
	Subscription *subscription.Snapshot `json:"subscription,omitempty"`
}

// Gateway is the consumed payment-provider surface. *paypal.Client satisfies
// it; tests substitute fakes.
type Gateway interface {
	CreateOrder(ctx context.Context, p paypal.CreateOrderParams) (*paypal.CreatedOrder, error)
	GetOrderStatus(ctx context.Context, providerOrderID string) (string, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (*paypal.CaptureResult, error)
}

// SnapshotReader resolves the effective subscription view for reconcile
// responses. Satisfied by *subscription.Service.
type SnapshotReader interface {
	GetEffectiveSubscription(ctx context.Context, userID uint) (*subscription.Snapshot, error)
}

// FinalizeInput describes the atomic completion of a pending order: the
// order status flip plus, depending on purpose, the subscription ledger
// transition or the donation insert, all in one storage transaction.
type FinalizeInput struct {
	OrderID       uint
	ProviderTxnID string
	// RequestID, when set, persists an idempotency marker inside the same
	// transaction.
	RequestID string
	Now       time.Time
}

// FinalizeOutcome reports whether this caller performed the transition or
// lost the race to a concurrent reconciler.
type FinalizeOutcome struct {
	AlreadyTerminal bool
	Status          string
	Subscription    *models.UserSubscription
}

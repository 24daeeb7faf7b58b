package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/app/repository"
	"github.com/FitLedger/FitLedger/internal/pkg/database"
	"github.com/FitLedger/FitLedger/internal/pkg/payment"
	"github.com/FitLedger/FitLedger/internal/pkg/paypal"
	"github.com/FitLedger/FitLedger/internal/pkg/subscription"
	"github.com/FitLedger/FitLedger/internal/pkg/usercontext"
)

func paymentService() *payment.Service {
	db := database.GetDB()
	return payment.NewServiceFromDB(db, paypal.NewClientFromEnv(), subscription.NewServiceFromDB(db))
}

type createOrderRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Purpose     string  `json:"purpose"`
	PlanID      uint    `json:"plan_id"`
	Message     string  `json:"message"`
	DisplayName string  `json:"display_name"`
}

// HandleCreateOrder creates a pending payment order and returns the provider
// approval URL the client must redirect the buyer to.
func HandleCreateOrder(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	var purpose payment.Purpose
	switch req.Purpose {
	case "subscription":
		purpose = payment.SubscriptionPurpose(req.PlanID)
	case "donation":
		purpose = payment.DonationPurpose(req.Message, req.DisplayName)
	default:
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "purpose must be subscription or donation")
	}

	result, err := paymentService().CreateOrder(c.UserContext(), payment.CreateOrderInput{
		UserID:   userCtx.UserID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Purpose:  purpose,
	})
	if err != nil {
		return mapPaymentError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// orderView shapes one ledger row for API responses. Internal row ids stay
// hidden; the public id is the only order identifier clients see.
func orderView(o *models.PaymentOrder) fiber.Map {
	return fiber.Map{
		"order_id":        o.PublicID,
		"purpose":         o.Purpose,
		"amount":          o.Amount,
		"currency":        o.Currency,
		"status":          o.Status,
		"provider_txn_id": o.ProviderTxnID,
		"completed_at":    formatTimePtr(o.CompletedAt),
		"created_at":      o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleListOrders returns the authenticated user's payment order history,
// newest first.
func HandleListOrders(c *fiber.Ctx) error {
	if !isLoggedIn(c) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 20)
	if offset < 0 {
		offset = 0
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	repo := repository.GetGlobalFactory().GetOrderRepository()
	orders, err := repo.ListByUserID(usercontext.GetUserID(c), offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load orders")
	}

	items := make([]fiber.Map, 0, len(orders))
	for i := range orders {
		items = append(items, orderView(&orders[i]))
	}
	return c.JSON(fiber.Map{"orders": items, "offset": offset, "limit": limit})
}

// HandleGetOrder returns a single order by its public id. Orders belonging
// to other users answer 404, matching the unknown-order response.
func HandleGetOrder(c *fiber.Ctx) error {
	if !isLoggedIn(c) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	publicID := strings.TrimSpace(c.Params("id"))
	if publicID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Order id is required")
	}

	order, err := repository.GetGlobalFactory().GetOrderRepository().GetByPublicID(publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Order not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load order")
	}
	if order.UserID != usercontext.GetUserID(c) && !usercontext.IsAdmin(c) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Order not found")
	}
	return c.JSON(orderView(order))
}

// HandlePaymentReturn is the provider redirect target after buyer approval.
// It reconciles the order immediately so the buyer sees the final state.
func HandlePaymentReturn(c *fiber.Ctx) error {
	orderID := strings.TrimSpace(c.Query("order_id"))
	if orderID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "order_id is required")
	}

	result, err := paymentService().Reconcile(c.UserContext(), orderID, "")
	if err != nil {
		return mapPaymentError(c, err)
	}
	return c.JSON(result)
}

// HandlePaymentCancel is the provider redirect target when the buyer backs
// out of the approval flow.
func HandlePaymentCancel(c *fiber.Ctx) error {
	orderID := strings.TrimSpace(c.Query("order_id"))
	if orderID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "order_id is required")
	}

	result, err := paymentService().Abort(c.UserContext(), orderID)
	if err != nil {
		return mapPaymentError(c, err)
	}
	return c.JSON(result)
}

type paypalWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID            string `json:"id"`
		PurchaseUnits []struct {
			ReferenceID string `json:"reference_id"`
		} `json:"purchase_units"`
	} `json:"resource"`
}

// HandlePayPalWebhook processes asynchronous provider notifications. The
// provider event id doubles as the idempotency key, so redelivered events
// are answered from recorded state instead of being re-applied.
func HandlePayPalWebhook(c *fiber.Ctx) error {
	var event paypalWebhookEvent
	if err := c.BodyParser(&event); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid webhook payload")
	}
	if event.ID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Webhook event id missing")
	}

	orderID := ""
	if len(event.Resource.PurchaseUnits) > 0 {
		orderID = event.Resource.PurchaseUnits[0].ReferenceID
	}
	if orderID == "" {
		// Event types that do not carry our order reference are acknowledged
		// so the provider stops redelivering them.
		return c.JSON(fiber.Map{"received": true, "ignored": true})
	}

	result, err := paymentService().Reconcile(c.UserContext(), orderID, event.ID)
	if err != nil {
		if errors.Is(err, payment.ErrOrderNotFound) {
			return c.JSON(fiber.Map{"received": true, "ignored": true})
		}
		return mapPaymentError(c, err)
	}

	return c.JSON(fiber.Map{"received": true, "order_id": result.OrderID, "status": result.FinalStatus})
}

func mapPaymentError(c *fiber.Ctx, err error) error {
	var vErr *payment.ValidationError
	if errors.As(err, &vErr) {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", vErr.Error())
	}
	if errors.Is(err, payment.ErrOrderNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Order not found")
	}
	var pErr *payment.ProviderError
	if errors.As(err, &pErr) {
		return jsonError(c, fiber.StatusBadGateway, "provider_error", "Payment provider request failed")
	}
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Payment processing failed")
}

package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/FitLedger/FitLedger/app/repository"
	"github.com/FitLedger/FitLedger/internal/pkg/database"
	"github.com/FitLedger/FitLedger/internal/pkg/entitlements"
	"github.com/FitLedger/FitLedger/internal/pkg/subscription"
	"github.com/FitLedger/FitLedger/internal/pkg/usercontext"
)

func subscriptionService() *subscription.Service {
	return subscription.NewServiceFromDB(database.GetDB())
}

// HandleGetSubscription returns the authenticated user's effective
// subscription snapshot.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	snap, err := subscriptionService().GetEffectiveSubscription(c.UserContext(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscription")
	}
	return c.JSON(snap)
}

// HandleCheckLimit evaluates a resource count against the user's plan limit.
func HandleCheckLimit(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	resource, ok := entitlements.ParseResource(c.Params("resource"))
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown resource")
	}

	check, err := subscriptionService().CheckLimit(c.UserContext(), userCtx.UserID, resource)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to evaluate limit")
	}
	return c.JSON(check)
}

// HandleListPlans returns the public plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	plans, err := subscriptionService().ListPlans(c.UserContext())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load plans")
	}
	return c.JSON(fiber.Map{"plans": plans})
}

type adminSetPlanRequest struct {
	PlanID uint `json:"plan_id"`
}

// HandleAdminSetPlan grants a plan to a user by administrative decision.
func HandleAdminSetPlan(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || userID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid user id")
	}

	var req adminSetPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if req.PlanID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "plan_id is required")
	}

	if _, err := repository.GetGlobalFactory().GetUserRepository().GetByID(uint(userID)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	snap, err := subscriptionService().AdminSetPlan(c.UserContext(), uint(userID), req.PlanID)
	if err != nil {
		if errors.Is(err, subscription.ErrPlanNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Plan not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to change plan")
	}
	return c.JSON(snap)
}

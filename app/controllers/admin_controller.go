package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/app/repository"
	"github.com/FitLedger/FitLedger/internal/pkg/jobqueue"
)

// HandleAdminListUsers returns a paginated account listing with the total
// count for paging controls.
func HandleAdminListUsers(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 25)
	if offset < 0 {
		offset = 0
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	users, err := repo.List(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load users")
	}
	total, err := repo.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count users")
	}

	return c.JSON(fiber.Map{"users": users, "total": total, "offset": offset, "limit": limit})
}

// HandleAdminStats returns operational counters: account total and the
// payment order ledger broken down by status.
func HandleAdminStats(c *fiber.Ctx) error {
	factory := repository.GetGlobalFactory()

	users, err := factory.GetUserRepository().Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count users")
	}

	orderRepo := factory.GetOrderRepository()
	orders := fiber.Map{}
	for _, status := range []string{models.OrderStatusPending, models.OrderStatusCompleted, models.OrderStatusCancelled} {
		n, err := orderRepo.CountByStatus(status)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count orders")
		}
		orders[status] = n
	}

	return c.JSON(fiber.Map{"users": users, "orders": orders})
}

// HandleAdminQueueStatus reports the maintenance queue depths.
func HandleAdminQueueStatus(c *fiber.Ctx) error {
	q := jobqueue.GetManager().GetQueue()

	pending, err := q.GetQueueSize(c.UserContext())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to read queue size")
	}
	processing, err := q.GetProcessingSize(c.UserContext())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to read processing size")
	}

	return c.JSON(fiber.Map{"pending": pending, "processing": processing})
}

// HandleAdminGetQueueJob returns one maintenance job by id. Completed jobs
// are removed from Redis, so they answer 404 once done.
func HandleAdminGetQueueJob(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	if jobID == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Job id is required")
	}

	job, err := jobqueue.GetManager().GetQueue().GetJob(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Job not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load job")
	}
	return c.JSON(job)
}

package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/FitLedger/FitLedger/app/controllers"
	"github.com/FitLedger/FitLedger/internal/pkg/middleware"
)

// APIServer implements the public v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// Pong is the ping response payload
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostPaymentOrder creates a payment order for the authenticated user.
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) PostPaymentOrder(c *fiber.Ctx) error {
	return controllers.HandleCreateOrder(c)
}

// GetSubscription returns the effective subscription snapshot.
func (s *APIServer) GetSubscription(c *fiber.Ctx) error {
	return controllers.HandleGetSubscription(c)
}

// GetSubscriptionLimit evaluates a plan limit for one resource.
func (s *APIServer) GetSubscriptionLimit(c *fiber.Ctx) error {
	return controllers.HandleCheckLimit(c)
}

// GetPlans returns the public plan catalog.
func (s *APIServer) GetPlans(c *fiber.Ctx) error {
	return controllers.HandleListPlans(c)
}

// GetPaymentOrders returns the caller's order history.
func (s *APIServer) GetPaymentOrders(c *fiber.Ctx) error {
	return controllers.HandleListOrders(c)
}

// GetPaymentOrder returns one order by its public id.
func (s *APIServer) GetPaymentOrder(c *fiber.Ctx) error {
	return controllers.HandleGetOrder(c)
}

// PutAdminUserPlan applies an administrative plan change.
func (s *APIServer) PutAdminUserPlan(c *fiber.Ctx) error {
	return controllers.HandleAdminSetPlan(c)
}

// GetAdminUsers returns the paginated account listing.
func (s *APIServer) GetAdminUsers(c *fiber.Ctx) error {
	return controllers.HandleAdminListUsers(c)
}

// GetAdminStats returns operational counters.
func (s *APIServer) GetAdminStats(c *fiber.Ctx) error {
	return controllers.HandleAdminStats(c)
}

// GetAdminQueue reports maintenance queue depths.
func (s *APIServer) GetAdminQueue(c *fiber.Ctx) error {
	return controllers.HandleAdminQueueStatus(c)
}

// GetAdminQueueJob returns one maintenance job by id.
func (s *APIServer) GetAdminQueueJob(c *fiber.Ctx) error {
	return controllers.HandleAdminGetQueueJob(c)
}

// RegisterHandlers wires the v1 routes onto the given router group.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)
	router.Get("/plans", s.GetPlans)

	authed := router.Group("", middleware.APIKeyAuthMiddleware(), middleware.RequireAPISessionAuth)
	authed.Post("/payments/orders", s.PostPaymentOrder)
	authed.Get("/payments/orders", s.GetPaymentOrders)
	authed.Get("/payments/orders/:id", s.GetPaymentOrder)
	authed.Get("/subscription", s.GetSubscription)
	authed.Get("/subscription/limits/:resource", s.GetSubscriptionLimit)

	admin := authed.Group("/admin", middleware.RequireAPIAdmin)
	admin.Put("/users/:id/plan", s.PutAdminUserPlan)
	admin.Get("/users", s.GetAdminUsers)
	admin.Get("/stats", s.GetAdminStats)
	admin.Get("/queue", s.GetAdminQueue)
	admin.Get("/queue/jobs/:id", s.GetAdminQueueJob)
}

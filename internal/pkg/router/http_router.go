package router

import (
	"github.com/FitLedger/FitLedger/app/controllers"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

// InstallRouter registers the routes the payment provider calls back into:
// the buyer redirect targets and the asynchronous webhook. These live
// outside the authenticated API group because the provider carries no API
// credentials; the order public id is the capability.
func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/payments/return", controllers.HandlePaymentReturn)
	app.Get("/payments/cancel", controllers.HandlePaymentCancel)
	app.Post("/webhooks/paypal", controllers.HandlePayPalWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs a set of routes onto the Fiber app.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// Install HttpRouter first so provider callbacks and webhooks are
	// registered before the rate-limited API group.
	setup(app, NewHttpRouter(), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

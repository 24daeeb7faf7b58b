package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/FitLedger/FitLedger/app/models"
	"github.com/FitLedger/FitLedger/app/repository"
	"github.com/FitLedger/FitLedger/internal/pkg/cache"
	"github.com/FitLedger/FitLedger/internal/pkg/database"
	"github.com/FitLedger/FitLedger/internal/pkg/env"
	"github.com/FitLedger/FitLedger/internal/pkg/jobqueue"
	"github.com/FitLedger/FitLedger/internal/pkg/router"
)

func main() {
	app := NewApplication()

	manager := jobqueue.GetManager()
	manager.Start()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))

	// Drain workers before exiting, even when the listener failed to bind.
	manager.Stop()
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	ensureAdminUser()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/fitledger to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "docs"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	specPath := basePath + "docs/openapi.yml"
	validateOpenAPISpec(specPath)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "FitLedger",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: specPath,
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}

// ensureAdminUser bootstraps the administrative account from the
// INITIAL_ADMIN_EMAIL / INITIAL_ADMIN_PASSWORD environment pair. An existing
// account under that email is promoted to admin instead of duplicated.
func ensureAdminUser() {
	email := env.GetEnv("INITIAL_ADMIN_EMAIL", "")
	password := env.GetEnv("INITIAL_ADMIN_PASSWORD", "")
	if email == "" || password == "" {
		return
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("admin bootstrap: lookup failed: %v", err)
			return
		}
		hash, err := models.HashPassword(password)
		if err != nil {
			log.Printf("admin bootstrap: password hash failed: %v", err)
			return
		}
		admin := &models.User{
			Name:     env.GetEnv("INITIAL_ADMIN_NAME", "Administrator"),
			Email:    email,
			Password: hash,
			Role:     models.ROLE_ADMIN,
			Status:   models.STATUS_ACTIVE,
		}
		if err := repo.Create(admin); err != nil {
			log.Printf("admin bootstrap: create failed: %v", err)
		}
		return
	}

	if user.IsAdmin() {
		return
	}
	user.Role = models.ROLE_ADMIN
	if err := repo.Update(user); err != nil {
		log.Printf("admin bootstrap: promote failed: %v", err)
	}
}

// validateOpenAPISpec fails fast when the served API document is broken, so
// a malformed spec never reaches the docs endpoint.
func validateOpenAPISpec(path string) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		log.Fatalf("failed to load OpenAPI document %s: %v", path, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		log.Fatalf("invalid OpenAPI document %s: %v", path, err)
	}
}

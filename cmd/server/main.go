package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/famcare/backend/internal/config"
	"github.com/famcare/backend/internal/database"
	"github.com/famcare/backend/internal/handlers"
	"github.com/famcare/backend/internal/middleware"
	"github.com/famcare/backend/internal/services"
	"github.com/famcare/backend/pkg/logger"
	"github.com/famcare/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	registry := services.NewRegistryClient(cfg.Registry)
	familyService := services.NewFamilyService(db, registry)
	leaderService := services.NewLeaderService(db)

	provisionHandler := handlers.NewProvisionHandler(familyService)
	groupsHandler := handlers.NewGroupsHandler(db, familyService)
	leadersHandler := handlers.NewLeadersHandler(db, leaderService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	api.Post("/family/provision", authMiddleware.RequireAuth, provisionHandler.Provision)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Post("/:id/members", groupsHandler.AddMember)
	groupRoutes.Delete("/:id/members/:shortId", groupsHandler.RemoveMember)

	leaderRoutes := api.Group("/leaders", authMiddleware.RequireAuth)
	leaderRoutes.Post("/", leadersHandler.Create)
	leaderRoutes.Get("/", leadersHandler.List)
	leaderRoutes.Get("/:shortId", leadersHandler.Get)
	leaderRoutes.Put("/:shortId", leadersHandler.Update)
	leaderRoutes.Delete("/:shortId", leadersHandler.Delete)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

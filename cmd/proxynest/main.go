package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/uzzalhcse/proxynest/api/handlers"
	"github.com/uzzalhcse/proxynest/internal/auth"
	"github.com/uzzalhcse/proxynest/internal/config"
	"github.com/uzzalhcse/proxynest/internal/geo"
	"github.com/uzzalhcse/proxynest/internal/logger"
	"github.com/uzzalhcse/proxynest/internal/prober"
	"github.com/uzzalhcse/proxynest/internal/proxypool"
	"github.com/uzzalhcse/proxynest/internal/settings"
	"github.com/uzzalhcse/proxynest/internal/storage"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(true); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ProxyNest")

	db, err := storage.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	proxyRepo := storage.NewProxyRepository(db)
	settingsRepo := storage.NewSettingsRepository(db)
	userRepo := storage.NewUserRepository(db)

	settingsRegistry := settings.New(settingsRepo)
	if _, err := settingsRegistry.Load(context.Background()); err != nil {
		logger.Fatal("Failed to load settings", zap.Error(err))
	}

	countryLookup := geo.New(cfg.GeoIP.DatabasePath)
	defer countryLookup.Close()

	proxyProber := prober.New(cfg.Prober)

	registry := proxypool.NewRegistry(proxyRepo, proxyProber)
	engine := proxypool.NewEngine(proxyRepo, settingsRegistry)
	loops := proxypool.NewLoops(proxyRepo, proxyProber, countryLookup, settingsRegistry, cfg.Prober.MaxConcurrentProbes)

	authService := auth.New(userRepo)
	if err := authService.Bootstrap(context.Background(), cfg.Admin.Username, cfg.Admin.Password); err != nil {
		logger.Warn("Admin bootstrap failed", zap.Error(err))
	}

	loopCtx, cancelLoops := context.WithCancel(context.Background())
	go loops.Run(loopCtx)

	app := fiber.New(fiber.Config{
		AppName:               "ProxyNest",
		DisableStartupMessage: false,
		ErrorHandler:          errorHandler,
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,PATCH",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		logger.Info("Request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", duration),
			zap.String("ip", c.IP()),
		)

		return err
	})

	proxyHandler := handlers.NewProxyHandler(registry, engine)
	settingsHandler := handlers.NewSettingsHandler(settingsRegistry)
	authHandler := handlers.NewAuthHandler(authService)

	setupRoutes(app, proxyHandler, settingsHandler, authHandler)

	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := db.Health(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
		}

		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
			"time":    time.Now().UTC(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", zap.String("address", addr))

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}

		cancelLoops()
	}()

	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func setupRoutes(app *fiber.App, proxyHandler *handlers.ProxyHandler, settingsHandler *handlers.SettingsHandler, authHandler *handlers.AuthHandler) {
	api := app.Group("/api/v1")

	proxies := api.Group("/proxies")
	proxies.Post("/", proxyHandler.AddProxy)
	proxies.Get("/", proxyHandler.ListProxies)
	proxies.Post("/assign", proxyHandler.AssignProxy)
	proxies.Patch("/:id", proxyHandler.EditProxy)
	proxies.Delete("/:id", proxyHandler.DeleteProxy)
	proxies.Post("/:id/refresh", proxyHandler.RefreshUsage)
	proxies.Post("/:id/instances/:instance_id/clear", proxyHandler.ClearInstanceFromProxy)
	proxies.Post("/reset", proxyHandler.ResetAllProxies)

	instances := api.Group("/instances")
	instances.Post("/:instance_id/clear", proxyHandler.ClearInstanceProxies)

	settingsGroup := api.Group("/settings")
	settingsGroup.Get("/", settingsHandler.Get)
	settingsGroup.Patch("/", settingsHandler.Update)

	authGroup := api.Group("/auth")
	authGroup.Post("/reset-password", authHandler.ResetPassword)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	logger.Error("Request error",
		zap.Error(err),
		zap.String("path", c.Path()),
		zap.Int("status", code),
	)

	return c.Status(code).JSON(fiber.Map{
		"status":  "error",
		"message": err.Error(),
	})
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"teamup/internal/handlers"
	"teamup/internal/jobs"
	"teamup/internal/middleware"
	"teamup/internal/preflight"
	"teamup/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, change feed and background jobs",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("🚀 Starting TeamUp Server...")

	a, err := newApp(context.Background(), prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	checkCtx, cancelChecks := context.WithTimeout(context.Background(), 10*time.Second)
	results := preflight.NewChecker(cfg, a.mongo).RunAll(checkCtx)
	cancelChecks()
	if preflight.HasFailures(results) {
		return errors.New("pre-flight checks failed")
	}

	// Identity tokens
	var verifier *auth.IdentityVerifier
	if cfg.JWTSecret != "" {
		verifier, err = auth.NewIdentityVerifier(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return err
		}
		log.Println("✅ Identity token verification enabled")
	} else {
		log.Println("⚠️  JWT_SECRET not set, requests run as a development user")
	}

	app := fiber.New(fiber.Config{
		AppName:      "TeamUp",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prom := fiberprometheus.New("teamup")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Fiber's CORS middleware does not allow AllowCredentials with wildcard origins
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: cfg.AllowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	rateLimitConfig := middleware.LoadRateLimitConfig(cfg.Environment)
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Write=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax, rateLimitConfig.WriteMax, rateLimitConfig.WebSocketMax)
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	routes := &handlers.Routes{
		Projects:     handlers.NewProjectHandler(a.projects, a.deletion),
		Applications: handlers.NewApplicationHandler(a.apps, a.projects),
		Wishlist:     handlers.NewWishlistHandler(a.wishlist),
		Profiles:     handlers.NewProfileHandler(a.users),
		Admin:        handlers.NewAdminHandler(a.scheduler, a.sweeper, a.reconciler),
		Feed:         handlers.NewFeedHandler(a.feed, a.projects),
		Health:       handlers.NewHealthHandler(a.health, a.feed),
	}
	routes.Mount(app, handlers.RouteOptions{
		Auth:             middleware.IdentityMiddleware(verifier, cfg.Environment),
		AdminOnly:        middleware.AdminMiddleware(cfg.AdminUserIDs),
		WriteLimiter:     middleware.WriteRateLimiter(rateLimitConfig),
		WebSocketLimiter: middleware.WebSocketRateLimiter(rateLimitConfig),
		WebSocket:        websocket.Config{Origins: strings.Split(cfg.AllowedOrigins, ",")},
	})

	a.scheduler.Start()
	if cfg.SweepOnStart {
		go func() {
			if err := a.scheduler.RunNow(context.Background(), jobs.DeadlineSweeperName); err != nil && !errors.Is(err, jobs.ErrJobRunning) {
				log.Printf("⚠️  Startup sweep failed: %v", err)
			}
		}()
	}

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔗 Change feed endpoint: ws://localhost:%s/ws/feed", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🕐 Background jobs: deadline sweep (%s), mirror reconcile (every %v)", cfg.SweepCron, cfg.ReconcileInterval)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop background jobs first so no sweep starts mid-shutdown
		if err := a.scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}
		// Ends every feed subscription, which closes their WebSockets
		a.feed.Close()

		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		return err
	}
	return nil
}

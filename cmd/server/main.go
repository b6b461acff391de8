package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campuschat/internal/bootstrap"
	"campuschat/internal/config"
	"campuschat/internal/routes"
	"campuschat/internal/scheduler"
	"campuschat/internal/websocket"
	"campuschat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger.Init()
	defer logger.Close()

	// Load configuration
	cfg := config.Load()
	cfg.ApplyEnvironmentOverrides()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage, realtime feed and services
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}
	defer app.Close()

	if _, err := app.Chats.EnsureCommunity(ctx); err != nil {
		logger.Fatalf("Failed to prepare community chat: %v", err)
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(app.Feed, app.Users, app.Chats, app.Calls, cfg.Server.WebSocket)
	go hub.Run(ctx)

	limiters := routes.NewLimiters(cfg.Security.RateLimit)
	limiters.StartCleanup(ctx, cfg.Security.RateLimit.IdleTTL)

	// Maintenance jobs
	jobs := scheduler.New(time.Minute)
	if err := scheduler.RegisterMaintenance(jobs, cfg, app.Calls, app.Chats, app.Catalog); err != nil {
		logger.Fatalf("Failed to schedule jobs: %v", err)
	}
	jobs.Start(ctx)
	defer jobs.Stop()

	// Initialize Gin router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Setup routes
	routes.SetupRoutes(router, routes.Dependencies{
		Config:   cfg,
		Auth:     app.Auth,
		Users:    app.Users,
		Settings: app.Settings,
		Presence: app.Presence,
		Chats:    app.Chats,
		Calls:    app.Calls,
		Catalog:  app.Catalog,
		Hub:      hub,
		Limiters: limiters,
		Health:   app.Health,
	})

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.HTTP.Port
	}
	srv := &http.Server{
		Addr:           net.JoinHostPort(cfg.Server.HTTP.Host, port),
		Handler:        router,
		ReadTimeout:    cfg.Server.HTTP.ReadTimeout,
		WriteTimeout:   cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:    cfg.Server.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.Server.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("%s %s listening on %s (%s store)", cfg.App.Name, cfg.App.Version, srv.Addr, cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Errorf("Server failed: %v", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Graceful shutdown failed: %v", err)
	}
}

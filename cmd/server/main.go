// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/od-approval-backend/internal/config"
	"github.com/javajoker/od-approval-backend/internal/database"
	"github.com/javajoker/od-approval-backend/internal/i18n"
	"github.com/javajoker/od-approval-backend/internal/logging"
	"github.com/javajoker/od-approval-backend/internal/middleware"
	"github.com/javajoker/od-approval-backend/internal/router"
	"github.com/javajoker/od-approval-backend/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger := logging.New(cfg)

	ctx := context.Background()

	// Initialize database
	stores, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.WithError(err).Error("Failed to close database")
		}
	}()

	// The in-memory store starts empty, so an admin can be seeded at boot
	if email := os.Getenv("SEED_ADMIN_EMAIL"); email != "" {
		if err := database.SeedAdmin(ctx, stores.Users, "System Administrator", email, os.Getenv("SEED_ADMIN_PASSWORD"), logger); err != nil {
			logger.WithError(err).Fatal("Failed to seed admin user")
		}
	}

	// Initialize i18n
	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		logger.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Initialize object storage
	objects, err := services.NewObjectStore(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Initialize services
	svc := services.NewServices(cfg, services.Dependencies{
		Requests: stores.Requests,
		Users:    stores.Users,
		Objects:  objects,
		Mailer:   services.NewSMTPMailer(cfg.Email, logger),
	}, logger)

	if cfg.Workflow.EscalationEnabled {
		if err := svc.Escalation.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start escalation sweeper")
		}
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	limiters := middleware.NewRateLimiters(cfg.RateLimit)
	defer limiters.Close()
	r := router.Initialize(svc, limiters, cfg, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.WithField("port", cfg.Server.Port).WithField("driver", stores.Driver).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// Stop the sweeper and drain pending notifications
	svc.Shutdown()

	logger.Info("Server exited")
}

// cmd/seed/main.go
package main

import (
	"context"
	"log"
	"os"

	"github.com/javajoker/od-approval-backend/internal/config"
	"github.com/javajoker/od-approval-backend/internal/database"
	"github.com/javajoker/od-approval-backend/internal/logging"
)

// Creates the first admin account from SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger := logging.New(cfg).WithField("component", "seed")

	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		logger.Fatal("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD are required")
	}
	name := os.Getenv("SEED_ADMIN_NAME")
	if name == "" {
		name = "System Administrator"
	}

	ctx := context.Background()
	stores, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer stores.Close(ctx)

	if err := database.SeedAdmin(ctx, stores.Users, name, email, password, logger); err != nil {
		logger.WithError(err).Fatal("Seeding failed")
	}
}

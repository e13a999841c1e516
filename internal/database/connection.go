// internal/database/connection.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/od-approval-backend/internal/config"
	"github.com/javajoker/od-approval-backend/internal/models"
	"github.com/javajoker/od-approval-backend/internal/repository"
)

// Stores is the request and user persistence selected by DB_DRIVER.
type Stores struct {
	Driver   string
	Requests repository.ODRequestStore
	Users    repository.UserStore
	close    func(context.Context) error
}

// Close releases the underlying connection.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// Open connects the configured backend and prepares its schema.
func Open(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*Stores, error) {
	switch cfg.Database.Driver {
	case "postgres", "":
		db, err := Initialize(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := RunMigrations(db, log); err != nil {
			Close(db, log)
			return nil, err
		}
		return &Stores{
			Driver:   "postgres",
			Requests: repository.NewGormODRequestStore(db),
			Users:    repository.NewGormUserStore(db),
			close: func(context.Context) error {
				Close(db, log)
				return nil
			},
		}, nil

	case "mongo":
		client, db, err := ConnectMongo(ctx, cfg.Mongo, log)
		if err != nil {
			return nil, err
		}
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}
		return &Stores{
			Driver:   "mongo",
			Requests: repository.NewMongoODRequestStore(db),
			Users:    repository.NewMongoUserStore(db),
			close:    client.Disconnect,
		}, nil

	case "memory":
		log.Warn("Using in-memory store; data is lost on restart")
		store := repository.NewMemoryStore()
		return &Stores{
			Driver:   "memory",
			Requests: store.Requests(),
			Users:    store.Users(),
		}, nil
	}

	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

func Initialize(cfg config.DatabaseConfig, log *logrus.Entry) (*gorm.DB, error) {
	// Configure GORM logger
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithField("host", cfg.Host).Info("Database connection established successfully")
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	default:
		return logger.Info
	}
}

func Close(db *gorm.DB, log *logrus.Entry) {
	sqlDB, err := db.DB()
	if err != nil {
		log.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Error("Error closing database connection")
	} else {
		log.Info("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB, log *logrus.Entry) error {
	log.Info("Running database migrations...")

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Run auto-migrations
	if err := db.AutoMigrate(&models.User{}, &models.ODRequest{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	createIndexes(db, log)

	log.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB, log *logrus.Entry) {
	indexes := []string{
		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_role_department ON users(role, department)",

		// OD request indexes
		"CREATE INDEX IF NOT EXISTS idx_od_requests_hod_status ON od_requests(hod, status)",
		"CREATE INDEX IF NOT EXISTS idx_od_requests_advisor_status ON od_requests(class_advisor, status)",
		"CREATE INDEX IF NOT EXISTS idx_od_requests_created_at ON od_requests(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_od_requests_pending_sweep ON od_requests(last_status_change_at) WHERE status = 'pending'",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			log.WithError(err).WithField("index", index).Warn("Failed to create index")
		}
	}
}

// ConnectMongo dials the configured cluster and verifies it with a ping.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig, log *logrus.Entry) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	log.WithField("database", cfg.Database).Info("Connected to MongoDB successfully")
	return client, client.Database(cfg.Database), nil
}

// SeedAdmin creates the first admin account when no admin exists yet.
func SeedAdmin(ctx context.Context, users repository.UserStore, name, email, password string, log *logrus.Entry) error {
	admins, err := users.Find(ctx, repository.UserFilter{Role: models.RoleAdmin})
	if err != nil {
		return fmt.Errorf("failed to look up admins: %w", err)
	}
	if len(admins) > 0 {
		log.Info("Admin user already present, skipping seed")
		return nil
	}

	admin := &models.User{
		Name:  name,
		Email: strings.ToLower(strings.TrimSpace(email)),
		Role:  models.RoleAdmin,
	}
	if err := admin.SetPassword(password); err != nil {
		return fmt.Errorf("failed to set admin password: %w", err)
	}
	if err := users.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("a non-admin user already uses %s", admin.Email)
		}
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	log.WithField("email", admin.Email).Info("Default admin user created successfully")
	return nil
}

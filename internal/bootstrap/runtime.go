// Package bootstrap wires the process-level dependencies every binary needs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"newsfeed/internal/cache"
	"newsfeed/internal/config"
	"newsfeed/internal/database"
	"newsfeed/internal/middleware"
	"newsfeed/internal/models"
	"newsfeed/internal/observability"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SkipSchema leaves the schema alone; cmd/migrate manages it explicitly.
	SkipSchema bool
	// RequireRedis fails startup instead of running without Redis.
	RequireRedis bool
}

// Runtime holds the shared connections of a running process.
type Runtime struct {
	DB              *gorm.DB
	Redis           *redis.Client
	ShutdownTracing func(context.Context) error
}

// Close releases the runtime's connections.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.ShutdownTracing != nil {
		_ = rt.ShutdownTracing(ctx)
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	if rt.DB != nil {
		if sqlDB, err := rt.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// InitRuntime configures logging and tracing, connects to the database and Redis,
// and ensures the development admin when asked to.
//
// Redis is optional: when it cannot be reached the runtime carries a nil client and
// callers run without caching, events, token revocation and the usage leaderboard.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	middleware.SetupLogger(cfg.Env, os.Getenv("LOG_LEVEL"))

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "newsfeed-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	rt := &Runtime{ShutdownTracing: shutdownTracing}

	rt.DB, err = database.ConnectWithOptions(ctx, cfg, database.ConnectOptions{ApplySchema: !opts.SkipSchema})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	rdb, err := cache.NewClient(ctx, cfg.RedisURL)
	switch {
	case err == nil:
		rt.Redis = rdb
	case opts.RequireRedis:
		if rdb != nil {
			_ = rdb.Close()
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("redis connection failed: %w", err)
	default:
		middleware.Logger.Warn("Redis unavailable, running without cache", slog.String("error", err.Error()))
		if rdb != nil {
			_ = rdb.Close()
		}
	}

	if err := EnsureDevAdmin(ctx, cfg, rt.DB); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}
	return rt, nil
}

// EnsureDevAdmin creates or promotes the configured development administrator.
// It only acts in the development environment with DEV_BOOTSTRAP_ADMIN set.
func EnsureDevAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapAdmin {
		return nil
	}

	username := strings.TrimSpace(cfg.DevAdminUsername)
	if username == "" {
		username = "newsfeed_admin"
	}
	password := cfg.DevAdminPassword
	if password == "" {
		return errors.New("DEV_ADMIN_PASSWORD must be set when DEV_BOOTSTRAP_ADMIN is enabled")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin models.User
		findErr := tx.Where("username = ?", username).First(&admin).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			admin = models.User{
				Username: username,
				Email:    username + "@newsfeed.local",
				Password: string(hashedPassword),
				IsAdmin:  true,
				Status:   models.UserStatusActive,
			}
			return tx.Create(&admin).Error
		case findErr != nil:
			return findErr
		default:
			return tx.Model(&admin).Updates(map[string]any{
				"is_admin":     true,
				"password":     string(hashedPassword),
				"status":       models.UserStatusActive,
				"withdrawn_at": nil,
			}).Error
		}
	})
	if err != nil {
		return err
	}

	middleware.Logger.Info("development admin ensured", slog.String("username", username))
	return nil
}

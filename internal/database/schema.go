package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"newsfeed/internal/config"
	"newsfeed/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes accepted in DB_SCHEMA_MODE.
const (
	SchemaModeSQL  = "sql"
	SchemaModeAuto = "auto"
)

// SchemaStatus is what `migrate status` prints.
type SchemaStatus struct {
	Mode    string
	Env     string
	Applied []int
	Pending []Migration
}

// Latest is the highest applied version, or 0 for an empty database.
func (s *SchemaStatus) Latest() int {
	if len(s.Applied) == 0 {
		return 0
	}
	return s.Applied[len(s.Applied)-1]
}

// UpToDate reports whether no migration is waiting.
func (s *SchemaStatus) UpToDate() bool {
	return len(s.Pending) == 0
}

func schemaMode(cfg *config.Config) string {
	if mode := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode)); mode != "" {
		return mode
	}
	return SchemaModeAuto
}

// ApplySchema runs the embedded migrations in sql mode and GORM AutoMigrate
// in auto mode.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	mode := schemaMode(cfg)
	switch mode {
	case SchemaModeSQL:
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
		return nil
	case SchemaModeAuto:
		middleware.Logger.Info("Auto-migrating models", slog.String("env", cfg.Env))
		if err := AutoMigrate(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
}

// GetSchemaStatus compares migration_logs with the embedded migrations.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	migrator, err := NewMigrator(db)
	if err != nil {
		return nil, err
	}
	applied, err := migrator.Applied(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := migrator.pendingAfter(applied)
	if err != nil {
		return nil, err
	}
	return &SchemaStatus{Mode: schemaMode(cfg), Env: cfg.Env, Applied: applied, Pending: pending}, nil
}

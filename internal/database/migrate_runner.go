package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"newsfeed/internal/middleware"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// migrationLockKey serializes migrators across replicas that boot together.
const migrationLockKey int64 = 0x6e657773 // "news"

// MigrationLog records one applied version.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (MigrationLog) TableName() string {
	return "migration_logs"
}

// Migrator applies embedded SQL migrations. Each version runs in its own
// transaction together with its migration_logs row.
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
	now        func() time.Time
}

// NewMigrator uses the embedded migrations.
func NewMigrator(db *gorm.DB) (*Migrator, error) {
	all, err := Migrations()
	if err != nil {
		return nil, err
	}
	return &Migrator{db: db, migrations: all, now: time.Now}, nil
}

// Applied lists recorded versions in ascending order. A database that has
// never been migrated has no log table and reports nothing.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	var versions []int
	err := m.db.WithContext(ctx).Model(&MigrationLog{}).Order("version").Pluck("version", &versions).Error
	if err != nil {
		if isMissingTableError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migration_logs: %w", err)
	}
	return versions, nil
}

// Pending returns the migrations not yet recorded.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	return m.pendingAfter(applied)
}

func (m *Migrator) pendingAfter(applied []int) ([]Migration, error) {
	if err := validateAppliedVersions(applied, m.migrations); err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if !done[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up applies every pending migration in order and returns what it ran.
func (m *Migrator) Up(ctx context.Context) ([]Migration, error) {
	if err := m.ensureLogTable(ctx); err != nil {
		return nil, err
	}

	var ran []Migration
	for {
		next, err := m.applyNext(ctx)
		if err != nil {
			return ran, err
		}
		if next == nil {
			return ran, nil
		}
		ran = append(ran, *next)
	}
}

// applyNext runs the lowest pending migration under the migration lock. The
// pending set is re-read inside the lock so a concurrent migrator never
// applies the same version twice.
func (m *Migrator) applyNext(ctx context.Context) (*Migration, error) {
	var applied *Migration
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.lock(tx); err != nil {
			return err
		}

		var versions []int
		if err := tx.Model(&MigrationLog{}).Order("version").Pluck("version", &versions).Error; err != nil {
			return fmt.Errorf("read migration_logs: %w", err)
		}
		pending, err := m.pendingAfter(versions)
		if err != nil || len(pending) == 0 {
			return err
		}

		next := pending[0]
		middleware.Logger.Info("Applying migration", slog.Int("version", next.Version), slog.String("name", next.Name))
		if err := tx.Exec(next.UpScript).Error; err != nil {
			return fmt.Errorf("apply %s: %w", next.String(), err)
		}
		if err := tx.Create(&MigrationLog{Version: next.Version, Name: next.Name, AppliedAt: m.now().UTC()}).Error; err != nil {
			return fmt.Errorf("record %s: %w", next.String(), err)
		}
		applied = &next
		return nil
	})
	return applied, err
}

// Down reverts version, which must be the most recently applied one.
func (m *Migrator) Down(ctx context.Context, version int) error {
	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == version {
			target = &m.migrations[i]
		}
	}
	if target == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.lock(tx); err != nil {
			return err
		}

		var latest MigrationLog
		err := tx.Order("version DESC").Limit(1).Find(&latest).Error
		if err != nil && !isMissingTableError(err) {
			return fmt.Errorf("read migration_logs: %w", err)
		}
		switch {
		case latest.Version == 0:
			return fmt.Errorf("migration %d has not been applied", version)
		case latest.Version != version:
			return fmt.Errorf("migration %d is not the latest applied (latest is %06d); roll back in order", version, latest.Version)
		}

		middleware.Logger.Info("Rolling back migration", slog.Int("version", version), slog.String("name", target.Name))
		if err := tx.Exec(target.DownScript).Error; err != nil {
			return fmt.Errorf("revert %s: %w", target.String(), err)
		}
		if err := tx.Where("version = ?", version).Delete(&MigrationLog{}).Error; err != nil {
			return fmt.Errorf("unrecord %s: %w", target.String(), err)
		}
		return nil
	})
}

func (m *Migrator) ensureLogTable(ctx context.Context) error {
	if IsPostgres(m.db) {
		const ddl = `CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
		if err := m.db.WithContext(ctx).Exec(ddl).Error; err != nil {
			return fmt.Errorf("create migration_logs: %w", err)
		}
		return nil
	}
	if err := m.db.WithContext(ctx).AutoMigrate(&MigrationLog{}); err != nil {
		return fmt.Errorf("create migration_logs: %w", err)
	}
	return nil
}

// lock takes a transaction-scoped advisory lock on Postgres. SQLite already
// serializes writers.
func (m *Migrator) lock(tx *gorm.DB) error {
	if !IsPostgres(tx) {
		return nil
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", migrationLockKey).Error; err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	return nil
}

// RunMigrations applies every pending embedded migration.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	migrator, err := NewMigrator(db)
	if err != nil {
		return err
	}
	ran, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	if len(ran) == 0 {
		middleware.Logger.Debug("Schema is up to date")
	}
	return nil
}

// RollbackMigration reverts the latest applied migration, which must be version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	migrator, err := NewMigrator(db)
	if err != nil {
		return err
	}
	return migrator.Down(ctx, version)
}

func isMissingTableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return strings.Contains(err.Error(), "no such table")
}

// validateAppliedVersions refuses to run against a database that knows
// versions this build does not, since its down scripts would be missing.
func validateAppliedVersions(applied []int, known []Migration) error {
	registered := make(map[int]bool, len(known))
	for _, m := range known {
		registered[m.Version] = true
	}

	var unknown []int
	for _, v := range applied {
		if !registered[v] {
			unknown = append(unknown, v)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	sort.Ints(unknown)
	labels := make([]string, len(unknown))
	for i, v := range unknown {
		labels[i] = fmt.Sprintf("%06d", v)
	}
	return fmt.Errorf("migration_logs has versions unknown to this build: %s", strings.Join(labels, ", "))
}

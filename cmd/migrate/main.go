// Command migrate runs schema operations for the newsfeed database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"newsfeed/internal/config"
	"newsfeed/internal/database"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// opener connects to the database without touching the schema.
type opener func(ctx context.Context) (*gorm.DB, *config.Config, error)

func connect(ctx context.Context) (*gorm.DB, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.ConnectWithOptions(ctx, cfg, database.ConnectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return db, cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(connect).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the newsfeed schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	withDB := func(fn func(ctx context.Context, out io.Writer, db *gorm.DB, cfg *config.Config, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			db, cfg, err := open(cmd.Context())
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			return fn(cmd.Context(), cmd.OutOrStdout(), db, cfg, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending SQL migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, out io.Writer, db *gorm.DB, _ *config.Config, _ []string) error {
				migrator, err := database.NewMigrator(db)
				if err != nil {
					return err
				}
				ran, err := migrator.Up(ctx)
				for _, m := range ran {
					fmt.Fprintf(out, "applied %s\n", m.String())
				}
				if err != nil {
					return fmt.Errorf("sql migrations failed: %w", err)
				}
				if len(ran) == 0 {
					fmt.Fprintln(out, "schema is up to date")
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "auto",
			Short: "Create or alter tables from the GORM models",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, out io.Writer, db *gorm.DB, cfg *config.Config, _ []string) error {
				cfg.DBSchemaMode = database.SchemaModeAuto
				if err := database.ApplySchema(ctx, db, cfg); err != nil {
					return fmt.Errorf("auto schema apply failed: %w", err)
				}
				fmt.Fprintln(out, "models migrated")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, out io.Writer, db *gorm.DB, cfg *config.Config, _ []string) error {
				status, err := database.GetSchemaStatus(ctx, db, cfg)
				if err != nil {
					return fmt.Errorf("schema status failed: %w", err)
				}
				fmt.Fprintf(out, "mode=%s env=%s latest=%06d applied=%d pending=%d\n",
					status.Mode, status.Env, status.Latest(), len(status.Applied), len(status.Pending))
				for _, m := range status.Pending {
					fmt.Fprintf(out, "pending %s\n", m.String())
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down <version>",
			Short: "Revert the latest applied migration",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(ctx context.Context, out io.Writer, db *gorm.DB, _ *config.Config, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				if err := database.RollbackMigration(ctx, db, version); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				if m, ok := database.MigrationByVersion(version); ok {
					fmt.Fprintf(out, "rolled back %s\n", m.String())
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "describe",
			Short: "Print columns and constraints of every table (Postgres only)",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, out io.Writer, db *gorm.DB, _ *config.Config, _ []string) error {
				if !database.IsPostgres(db) {
					return fmt.Errorf("describe needs a Postgres database")
				}
				return describe(ctx, out, db)
			}),
		},
	)
	return root
}

var describedTables = []string{"users", "posts", "comments", "likes", "api_use_times", "migration_logs"}

func describe(ctx context.Context, out io.Writer, db *gorm.DB) error {
	db = db.WithContext(ctx)
	for _, table := range describedTables {
		var columns []struct {
			Name string `gorm:"column:column_name"`
			Type string `gorm:"column:data_type"`
		}
		err := db.Raw(`SELECT column_name, data_type FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = ? ORDER BY ordinal_position`, table).Scan(&columns).Error
		if err != nil {
			return fmt.Errorf("describe %s: %w", table, err)
		}
		fmt.Fprintf(out, "%s:\n", table)
		if len(columns) == 0 {
			fmt.Fprintln(out, "  (missing)")
			continue
		}
		for _, c := range columns {
			fmt.Fprintf(out, "  - %s: %s\n", c.Name, c.Type)
		}

		var constraints []struct {
			Name string `gorm:"column:conname"`
			Def  string `gorm:"column:def"`
		}
		err = db.Raw(`SELECT c.conname, pg_get_constraintdef(c.oid) AS def
			FROM pg_constraint c
			JOIN pg_class r ON c.conrelid = r.oid
			JOIN pg_namespace n ON n.oid = r.relnamespace
			WHERE n.nspname = 'public' AND r.relname = ?`, table).Scan(&constraints).Error
		if err != nil {
			return fmt.Errorf("constraints of %s: %w", table, err)
		}
		for _, c := range constraints {
			fmt.Fprintf(out, "  * %s: %s\n", c.Name, c.Def)
		}
	}
	return nil
}

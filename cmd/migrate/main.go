// Command migrate manages the contract-analyzer Postgres schema.
//
//	go run ./cmd/migrate          apply pending migrations
//	go run ./cmd/migrate status   show applied and latest versions
//	go run ./cmd/migrate down     revert the newest migration
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"contract-analyzer/internal/shared/config"
	"contract-analyzer/internal/shared/storage/db"
	"contract-analyzer/internal/shared/telemetry"
)

// opener connects to the database the commands operate on.
type opener func(ctx context.Context) (*sql.DB, error)

func connectFromConfig(ctx context.Context) (*sql.DB, error) {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
}

func newRootCmd(open opener) *cobra.Command {
	withDB := func(fn func(ctx context.Context, cmd *cobra.Command, database *sql.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := open(ctx)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer database.Close()
			return fn(ctx, cmd, database)
		}
	}

	up := withDB(func(ctx context.Context, cmd *cobra.Command, database *sql.DB) error {
		if err := db.RunMigrations(ctx, database); err != nil {
			return err
		}
		telemetry.Info("db.migrate.complete", nil)
		return nil
	})

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the embedded schema migrations",
		Args:         cobra.NoArgs,
		RunE:         up,
		SilenceUsage: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			telemetry.Sync()
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE:  up,
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, cmd *cobra.Command, database *sql.DB) error {
				return db.RollbackMigration(ctx, database)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied and latest schema versions",
			Args:  cobra.NoArgs,
			RunE: withDB(func(ctx context.Context, cmd *cobra.Command, database *sql.DB) error {
				status, err := db.MigrationStatus(ctx, database)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current=%d latest=%d pending=%t\n", status.Current, status.Latest, status.Pending())
				return nil
			}),
		},
	)
	return root
}

func main() {
	if err := newRootCmd(connectFromConfig).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

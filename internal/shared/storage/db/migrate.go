package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"contract-analyzer/internal/shared/telemetry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"

var (
	gooseOnce sync.Once
	gooseErr  error
)

func setupGoose() error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrationFiles)
		goose.SetLogger(gooseLogger{})
		gooseErr = goose.SetDialect("postgres")
	})
	return gooseErr
}

// RunMigrations applies every pending embedded migration. A nil database is a
// no-op so in-memory deployments can call it unconditionally.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, database, migrationsDir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return fmt.Errorf("migrate down: no database configured")
	}
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, database, migrationsDir); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// SchemaStatus compares the applied schema version with the newest embedded
// migration.
type SchemaStatus struct {
	Current int64
	Latest  int64
}

func (s SchemaStatus) Pending() bool { return s.Current < s.Latest }

// MigrationStatus reads the applied version from the goose version table.
func MigrationStatus(ctx context.Context, database *sql.DB) (SchemaStatus, error) {
	if database == nil {
		return SchemaStatus{}, fmt.Errorf("migrate status: no database configured")
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return SchemaStatus{}, err
	}
	current, err := goose.GetDBVersionContext(ctx, database)
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("migrate status: %w", err)
	}
	return SchemaStatus{Current: current, Latest: latest}, nil
}

// LatestMigrationVersion is the highest version among the embedded migrations.
func LatestMigrationVersion() (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return 0, fmt.Errorf("collect migrations: %w", err)
	}
	last, err := migrations.Last()
	if err != nil {
		return 0, fmt.Errorf("collect migrations: %w", err)
	}
	return last.Version, nil
}

// gooseLogger routes goose output into the structured log.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	telemetry.Info("db.migrate", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	telemetry.Error("db.migrate", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
	telemetry.Sync()
	os.Exit(1)
}

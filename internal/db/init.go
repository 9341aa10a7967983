package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/constants"
	"github.com/RezaEskandarii/taskfire/internal/lock"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationTable = constants.Schema + ".goose_db_version"

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, postgresURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs a goose command ("up", "down", "status" or "version") against the
// embedded migrations. It holds the migration advisory lock for the whole run so
// only one instance migrates at a time.
func Migrate(ctx context.Context, db *sql.DB, distributedLock lock.DistributedLockManager, logger *slog.Logger, command string) error {
	run, ok := commands[command]
	if !ok {
		return fmt.Errorf("unknown migration command %q", command)
	}

	if err := distributedLock.Acquire(ctx, constants.MigrationLock); err != nil {
		return err
	}
	defer func() {
		if err := distributedLock.Release(context.WithoutCancel(ctx), constants.MigrationLock); err != nil {
			logger.Error("release migration lock failed", "error", err)
		}
	}()

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+constants.Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLogger{logger: logger})
	goose.SetTableName(migrationTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	started := time.Now()
	if err := run(ctx, db); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	logger.Info("migration command finished", "command", command, "duration", time.Since(started))
	return nil
}

var commands = map[string]func(ctx context.Context, db *sql.DB) error{
	"up": func(ctx context.Context, db *sql.DB) error {
		return goose.UpContext(ctx, db, "migrations")
	},
	"down": func(ctx context.Context, db *sql.DB) error {
		return goose.DownContext(ctx, db, "migrations")
	},
	"status": func(ctx context.Context, db *sql.DB) error {
		return goose.StatusContext(ctx, db, "migrations")
	},
	"version": func(ctx context.Context, db *sql.DB) error {
		return goose.VersionContext(ctx, db, "migrations")
	},
}

// gooseLogger forwards goose output to slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l *gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Fatalf does not exit; goose returns the error to Migrate.
func (l *gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

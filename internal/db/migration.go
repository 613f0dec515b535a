package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/yusufkecer/auth-backend/internal/config"
)

//go:embed migrations/mysql/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

// gooseLogger routes goose output through the package logger.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	log.Infof(format, v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Criticalf(format, v...)
}

// RunMigrations applies the embedded migrations of the given driver.
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	var dialect, dir string
	switch driver {
	case config.DriverMySQL:
		dialect, dir = "mysql", "migrations/mysql"
	case config.DriverSQLite:
		dialect, dir = "sqlite3", "migrations/sqlite"
	default:
		return fmt.Errorf("no migrations for driver %q", driver)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

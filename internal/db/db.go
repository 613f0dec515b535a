package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/yusufkecer/auth-backend/internal/config"
	_ "modernc.org/sqlite"
)

// sqlitePragmas are applied to every SQLite database. SQLite allows a single
// writer, so the pool is limited to one connection and transactions
// serialize.
var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA foreign_keys = ON;",
	"PRAGMA busy_timeout = 5000;",
}

// Connect opens the database selected by cfg.DBDriver. The memory driver has
// no SQL database and is rejected here.
func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return connectMySQL(ctx, cfg.DSN())
	case config.DriverSQLite:
		return ConnectSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("driver %q has no sql database", cfg.DBDriver)
	}
}

func connectMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infof("MySQL connection established")
	return db, nil
}

// ConnectSQLite opens the SQLite database at path. Use ":memory:" for a
// throwaway database.
func ConnectSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	log.Infof("SQLite database opened: %v", path)
	return db, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"finpay-ledger/internal/config"
)

// SQLExecutor represents both sql.DB and sql.Tx
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Ensure sql.DB and sql.Tx implement SQLExecutor
var (
	_ SQLExecutor = (*sql.DB)(nil)
	_ SQLExecutor = (*sql.Tx)(nil)
)

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.DBDriver)
	if err != nil {
		return nil, dialect, err
	}

	db, err := sql.Open(dialect.DriverName(), cfg.GetDBConnectionString())
	if err != nil {
		return nil, dialect, fmt.Errorf("failed to open database connection: %w", err)
	}

	if dialect == SQLite {
		// SQLite allows one writer; a single connection keeps writers queued in
		// the pool instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxOpenConns)
	}
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, dialect, fmt.Errorf("failed to ping database: %w", err)
	}

	if logger != nil {
		logger.Info("Successfully connected to database", "driver", cfg.DBDriver)
	}
	return db, dialect, nil
}

package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations for the dialect that have not
// been recorded in schema_migrations yet.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) error {
	createVersions := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	)`
	if _, err := db.ExecContext(ctx, createVersions); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	dir := "migrations/" + dialect.String()
	files, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	// Sort migration files by name (version)
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}
		version := strings.TrimSuffix(file.Name(), ".sql")

		var exists int
		err := db.QueryRowContext(ctx,
			dialect.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = $1`), version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		migrationSQL, err := migrationsFS.ReadFile(dir + "/" + file.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file.Name(), err)
		}

		if err := applyMigration(ctx, db, dialect, version, string(migrationSQL)); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("Applied migration", "version", version, "dialect", dialect.String())
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, dialect Dialect, version, migrationSQL string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migrationSQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", version, err)
	}

	_, err = tx.ExecContext(ctx,
		dialect.Rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`),
		version, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", version, err)
	}

	return tx.Commit()
}

// Package db provides database connection pooling via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

const createSchemaMigrations = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name    TEXT PRIMARY KEY,
	applied TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// The audit trail is low volume.
	config.MaxConns = 8
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies the migrations not yet recorded in schema_migrations,
// each in its own transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}
	pending := Pending(migrations, applied)
	slog.Info(fmt.Sprintf("%s - Running %d of %d migrations", logPrefix, len(pending), len(migrations)))

	for _, m := range pending {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("%s - begin %s: %w", logPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%s - record %s: %w", logPrefix, m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("%s - commit %s: %w", logPrefix, m.Name, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied %s", logPrefix, m.Name))
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationStatus prints each migration file in migrationPath with whether it
// has been applied.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	const statusLogPrefix = "db:MigrationStatus"

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("%s - %w", statusLogPrefix, err)
	}

	pending := Pending(files, applied)
	fmt.Printf("Migration status: %d applied, %d pending (%s)\n", len(files)-len(pending), len(pending), migrationPath)
	for _, m := range files {
		state := "applied"
		if !applied[m.Name] {
			state = "pending"
		}
		fmt.Printf("  %-8s %s\n", state, m.Name)
	}
	if len(pending) > 0 {
		fmt.Println("Run 'chatops migrate up' to apply pending migrations.")
	}
	return nil
}

// MigrationDown rolls back the last migration. Current implementation does not support down migrations
// (migrations are forward-only); this is a no-op with a message.
func MigrationDown(_ context.Context, _ *pgxpool.Pool, _ string) error {
	fmt.Println("Migration down: not supported (migrations are forward-only). Use 'chatops clear' to drop audit rows or restore a backup.")
	return nil
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	if _, err := pool.Exec(ctx, createSchemaMigrations); err != nil {
		return nil, fmt.Errorf("%s - create schema_migrations: %w", logPrefix, err)
	}
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - list applied migrations: %w", logPrefix, err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s - scan migration: %w", logPrefix, err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

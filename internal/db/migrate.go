package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

const sqliteSchemaVersion = 1

// MigratePostgres applies the schema. Every statement is idempotent, so it is
// safe to run on each deploy.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// MigrateSQLite applies the local schema once, tracked by PRAGMA user_version.
func MigrateSQLite(ctx context.Context, conn *sql.DB) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("migrate sqlite: read version: %w", err)
	}
	if v >= sqliteSchemaVersion {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite: apply schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, sqliteSchemaVersion)); err != nil {
		return fmt.Errorf("migrate sqlite: set version: %w", err)
	}
	return tx.Commit()
}

package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the schema up to date by applying every embedded migration
// that has not run yet, in lexical filename order. Each applied migration is
// recorded under a content-hashed key, so editing an already-applied file
// makes it run again instead of being silently skipped.
func Migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  id TEXT PRIMARY KEY,
  applied_at INTEGER NOT NULL
);
`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return err
		}
		key := migrationKey(name, body)

		applied, err := migrationApplied(ctx, conn, key)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := runMigration(ctx, conn, key, string(body)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func migrationKey(name string, body []byte) string {
	sum := sha256.Sum256(body)
	return name + ":" + hex.EncodeToString(sum[:])
}

func migrationApplied(ctx context.Context, conn *sql.DB, key string) (bool, error) {
	var one int
	err := conn.QueryRowContext(ctx,
		"SELECT 1 FROM schema_migrations WHERE id = ?", key).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case err == sql.ErrNoRows:
		return false, nil
	default:
		return false, err
	}
}

// runMigration executes one migration and its bookkeeping row in a single
// transaction, so a failed statement leaves the schema untouched.
func runMigration(ctx context.Context, conn *sql.DB, key, stmts string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, stmts); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations(id, applied_at) VALUES(?, strftime('%s','now'))", key); err != nil {
		return err
	}
	return tx.Commit()
}
